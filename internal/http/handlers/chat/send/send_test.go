package send

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rivve/boarding-house/internal/http/middlewarectx"
	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Send(ctx context.Context, senderUID, toUID, text string) (*models.Message, error) {
	args := m.Called(ctx, senderUID, toUID, text)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func TestSendHandler(t *testing.T) {
	sentAt := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name           string
		body           string
		setupMock      func(m *MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "sent",
			body: `{"to":"uid-2","text":"is the room still free?"}`,
			setupMock: func(m *MockService) {
				m.On("Send", mock.Anything, "uid-1", "uid-2", "is the room still free?").
					Return(&models.Message{ID: 3, SenderUID: "uid-1", ToUID: "uid-2", Text: "is the room still free?", CreatedAt: sentAt}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
			expectedBody: `{"status":"OK","data":{"id":3,"sender_uid":"uid-1","to_uid":"uid-2",
"text":"is the room still free?","created_at":"2025-06-01T18:30:00Z"}}`,
		},
		{
			name:           "missing text",
			body:           `{"to":"uid-2"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"field Text is a required field"}`,
		},
		{
			name: "unknown recipient",
			body: `{"to":"uid-9","text":"hi"}`,
			setupMock: func(m *MockService) {
				m.On("Send", mock.Anything, "uid-1", "uid-9", "hi").Return(nil, apperr.ErrUserNotFound).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"user not found"}`,
		},
		{
			name:           "invalid json",
			body:           `{"to":`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid request body"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewBufferString(tt.body))
			req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserUID, "uid-1"))
			w := httptest.NewRecorder()

			New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
