package sender

import (
	"errors"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rivve/boarding-house/internal/lib/smtp"
	"github.com/rivve/boarding-house/internal/models"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *MockTransport) From() mail.Address {
	args := m.Called()
	return args.Get(0).(mail.Address)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error {
	args := m.Called(from)
	return args.Error(0)
}

func (m *MockSMTPClient) Rcpt(to string) error {
	args := m.Called(to)
	return args.Error(0)
}

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSMTPClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSMTPClient) Quit() error {
	args := m.Called()
	return args.Error(0)
}

type MockSMTPWriter struct {
	mock.Mock
}

func (m *MockSMTPWriter) Write(p []byte) (n int, err error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *MockSMTPWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newService(t *testing.T, transport *MockTransport) *SenderService {
	t.Helper()
	s, err := NewSenderService(transport, newNoopLogger())
	require.NoError(t, err)
	return s
}

func TestSenderService_Render(t *testing.T) {
	s := newService(t, new(MockTransport))

	templates := []string{
		models.TemplateVerifyEmail,
		models.TemplateSubscriptionActivated,
		models.TemplatePaymentFailed,
		models.TemplateSubscriptionCancelled,
		models.TemplateSubscriptionExpired,
		models.TemplatePremiumEnded,
		models.TemplateSlotAvailable,
	}
	for _, name := range templates {
		t.Run(name, func(t *testing.T) {
			text, err := s.Render(models.Notification{Template: name, Data: map[string]any{"Username": "kamal"}})
			require.NoError(t, err)
			assert.Contains(t, text, "Hello kamal")
		})
	}

	text, err := s.Render(models.Notification{
		Template: models.TemplateSlotAvailable,
		Data:     map[string]any{"Username": "kamal", "Title": "Annex", "Address": "Kandy", "Available": 1, "URL": "https://x/1"},
	})
	require.NoError(t, err)
	assert.Contains(t, text, `"Annex" in Kandy now has 1 free place(s)`)

	_, err = s.Render(models.Notification{Template: "unknown"})
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestSenderService_HandleMessage(t *testing.T) {
	validBody := []byte(`{"email":"test@example.com","subject":"Verify","template":"verify_email","data":{"Username":"testuser","URL":"https://x"}}`)

	tests := []struct {
		name          string
		body          []byte
		setupMocks    func(*MockTransport)
		expectedError bool
		errorMessage  string
	}{
		{
			name: "success - send templated email",
			body: validBody,
			setupMocks: func(t *MockTransport) {
				mockClient := new(MockSMTPClient)
				mockWriter := new(MockSMTPWriter)

				t.On("From").Return(mail.Address{Name: "RiVVE Support", Address: "sender@example.com"})
				t.On("Connect").Return(mockClient, nil).Once()
				mockClient.On("Mail", "sender@example.com").Return(nil).Once()
				mockClient.On("Rcpt", "test@example.com").Return(nil).Once()
				mockClient.On("Data").Return(mockWriter, nil).Once()
				mockWriter.On("Write", mock.MatchedBy(func(p []byte) bool {
					msg := string(p)
					return strings.Contains(msg, `From: "RiVVE Support" <sender@example.com>`) &&
						strings.Contains(msg, "Subject: Verify") &&
						strings.Contains(msg, "Hello testuser")
				})).Return(100, nil).Once()
				mockWriter.On("Close").Return(nil).Once()
				mockClient.On("Quit").Return(nil).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			expectedError: false,
		},
		{
			name: "invalid JSON is dropped",
			body: []byte(`invalid json`),
			setupMocks: func(_ *MockTransport) {
				// сообщение не доставляется повторно
			},
			expectedError: false,
		},
		{
			name:          "unknown template is dropped",
			body:          []byte(`{"email":"test@example.com","template":"nope"}`),
			setupMocks:    func(_ *MockTransport) {},
			expectedError: false,
		},
		{
			name: "SMTP connection error is retried",
			body: validBody,
			setupMocks: func(t *MockTransport) {
				t.On("From").Return(mail.Address{Address: "sender@example.com"})
				t.On("Connect").Return(nil, errors.New("connection error")).Once()
			},
			expectedError: true,
			errorMessage:  "connection error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			service := newService(t, transport)

			tt.setupMocks(transport)

			err := service.HandleMessage(tt.body)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMessage)
			} else {
				assert.NoError(t, err)
			}

			transport.AssertExpectations(t)
		})
	}
}
