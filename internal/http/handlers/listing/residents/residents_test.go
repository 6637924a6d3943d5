package residents

import (
	"context"
	"fmt"
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
	"github.com/rivve/boarding-house/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) AddResident(ctx context.Context, landlordUID string, id int64) (*models.Listing, error) {
	args := m.Called(ctx, landlordUID, id)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

func (m *MockService) RemoveResident(ctx context.Context, landlordUID string, id int64) (*models.Listing, error) {
	args := m.Called(ctx, landlordUID, id)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

func TestResidentsHandler(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		setupMock      func(m *MockService)
		expectedStatus int
		contains       string
	}{
		{
			name: "add resident",
			path: "/listings/1/residents/add",
			setupMock: func(m *MockService) {
				m.On("AddResident", mock.Anything, "landlord-1", int64(1)).
					Return(&models.Listing{ID: 1, Residents: 2, CurrentResidents: 2}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			contains:       `"current_residents":2`,
		},
		{
			name: "remove resident",
			path: "/listings/1/residents/remove",
			setupMock: func(m *MockService) {
				m.On("RemoveResident", mock.Anything, "landlord-1", int64(1)).
					Return(&models.Listing{ID: 1, Residents: 2, CurrentResidents: 1}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			contains:       `"current_residents":1`,
		},
		{
			name: "listing full",
			path: "/listings/1/residents/add",
			setupMock: func(m *MockService) {
				m.On("AddResident", mock.Anything, "landlord-1", int64(1)).
					Return(nil, fmt.Errorf("listing.AddResident: %w", apperr.ErrInvalidOperation)).Once()
			},
			expectedStatus: http.StatusUnprocessableEntity,
			contains:       "invalid operation",
		},
		{
			name: "not the owner",
			path: "/listings/1/residents/remove",
			setupMock: func(m *MockService) {
				m.On("RemoveResident", mock.Anything, "landlord-1", int64(1)).Return(nil, apperr.ErrForbidden).Once()
			},
			expectedStatus: http.StatusForbidden,
			contains:       "forbidden",
		},
		{
			name: "missing listing",
			path: "/listings/7/residents/add",
			setupMock: func(m *MockService) {
				m.On("AddResident", mock.Anything, "landlord-1", int64(7)).Return(nil, apperr.ErrListingNotFound).Once()
			},
			expectedStatus: http.StatusNotFound,
			contains:       "listing not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			r := chi.NewRouter()
			r.Post("/listings/{id}/residents/add", New(logger, svc, OpAdd).ServeHTTP)
			r.Post("/listings/{id}/residents/remove", New(logger, svc, OpRemove).ServeHTTP)

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserUID, "landlord-1"))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
			svc.AssertExpectations(t)
		})
	}
}
