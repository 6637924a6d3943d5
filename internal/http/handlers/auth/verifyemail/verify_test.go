package verifyemail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rivve/boarding-house/internal/lib/apperr"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) VerifyEmail(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func TestVerifyEmailHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(m *MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "verified",
			body: `{"token":"tok"}`,
			setupMock: func(m *MockService) {
				m.On("VerifyEmail", mock.Anything, "tok").Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"verified":true}}`,
		},
		{
			name:           "missing token",
			body:           `{}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"field Token is a required field"}`,
		},
		{
			name: "expired token",
			body: `{"token":"old"}`,
			setupMock: func(m *MockService) {
				m.On("VerifyEmail", mock.Anything, "old").
					Return(fmt.Errorf("auth.VerifyEmail: %w", apperr.ErrInvalidToken)).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid or expired verification token"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/verify-email", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
