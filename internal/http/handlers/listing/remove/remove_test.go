package remove

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rivve/boarding-house/internal/http/middlewarectx"
	"github.com/rivve/boarding-house/internal/lib/apperr"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Delete(ctx context.Context, landlordUID string, id int64) error {
	return m.Called(ctx, landlordUID, id).Error(0)
}

func TestRemoveHandler(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		setupMock      func(m *MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "deleted",
			path: "/listings/4",
			setupMock: func(m *MockService) {
				m.On("Delete", mock.Anything, "landlord-1", int64(4)).Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"id":4}}`,
		},
		{
			name: "not the owner",
			path: "/listings/4",
			setupMock: func(m *MockService) {
				m.On("Delete", mock.Anything, "landlord-1", int64(4)).Return(apperr.ErrForbidden).Once()
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"status":"Error","error":"forbidden"}`,
		},
		{
			name:           "bad id",
			path:           "/listings/four",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"failed to decode id from url"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			r := chi.NewRouter()
			r.Delete("/listings/{id}", New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).ServeHTTP)

			req := httptest.NewRequest(http.MethodDelete, tt.path, nil)
			req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserUID, "landlord-1"))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
