package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivve/boarding-house/internal/lib/apperr"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.ErrInvalidPlan, http.StatusBadRequest},
		{apperr.ErrInvalidSignature, http.StatusBadRequest},
		{fmt.Errorf("op: %w", apperr.ErrPaymentNotFound), http.StatusNotFound},
		{apperr.ErrAlreadySubscribed, http.StatusConflict},
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized},
		{apperr.ErrForbidden, http.StatusForbidden},
		{apperr.ErrCheckoutSessionFailed, http.StatusBadGateway},
		{apperr.ErrInvalidOperation, http.StatusUnprocessableEntity},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestFail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Fail(w, r, fmt.Errorf("listing.Get: %w", apperr.ErrListingNotFound))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":"Error","error":"listing not found"}`, w.Body.String())

	w = httptest.NewRecorder()
	Fail(w, r, errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"Error","error":"internal error"}`, w.Body.String())
}

func TestValidationError(t *testing.T) {
	type request struct {
		Email string `validate:"required,email"`
		Plan  string `validate:"oneof=gold platinum"`
	}
	err := validator.New().Struct(request{Plan: "diamond"})
	require.Error(t, err)

	resp := ValidationError(err.(validator.ValidationErrors))
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "field Email is a required field, field Plan must be one of [gold platinum]", resp.Error)
}
