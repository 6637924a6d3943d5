package chatbot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rivve/boarding-house/internal/lib/apperr"
)

type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func reply(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}},
	}}
}

func TestChatbotService_Ask(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		setupMocks func(c *MockChatClient)
		want       string
		wantErr    error
	}{
		{
			name:    "answer",
			message: "How do I contact a landlord?",
			setupMocks: func(c *MockChatClient) {
				c.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(r openai.ChatCompletionRequest) bool {
					return r.Model == "gpt-4o-mini" && len(r.Messages) == 2 &&
						r.Messages[0].Role == openai.ChatMessageRoleSystem &&
						r.Messages[1].Content == "How do I contact a landlord?"
				})).Return(reply("  Open the listing and press Contact. "), nil).Once()
			},
			want: "Open the listing and press Contact.",
		},
		{
			name:    "upstream failure",
			message: "hi",
			setupMocks: func(c *MockChatClient) {
				c.On("CreateChatCompletion", mock.Anything, mock.Anything).
					Return(openai.ChatCompletionResponse{}, errors.New("429")).Once()
			},
			wantErr: apperr.ErrUpstream,
		},
		{
			name:    "empty choices",
			message: "hi",
			setupMocks: func(c *MockChatClient) {
				c.On("CreateChatCompletion", mock.Anything, mock.Anything).
					Return(openai.ChatCompletionResponse{}, nil).Once()
			},
			wantErr: apperr.ErrUpstream,
		},
		{
			name:       "too long",
			message:    strings.Repeat("a", maxMessageLength+1),
			setupMocks: func(_ *MockChatClient) {},
			wantErr:    ErrMessageTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockChatClient)
			tt.setupMocks(client)

			got, err := NewChatbotService(client, "gpt-4o-mini", newNoopLogger()).Ask(context.Background(), tt.message)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			client.AssertExpectations(t)
		})
	}
}
