package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/lib/clock"
	"github.com/rivve/boarding-house/internal/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockRepository) ListConversation(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

func (m *MockRepository) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

const (
	kasun = "5f0c6d1e-8a43-4c55-9d2b-0e4f1a7b9c21"
	nimal = "a1b2c3d4-e5f6-4789-8abc-def012345678"
)

var now = time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

func newService(repo *MockRepository) *ChatService {
	return NewChatService(repo, clock.Fixed(now), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestChatService_Send(t *testing.T) {
	tests := []struct {
		name      string
		to        string
		text      string
		setupMock func(repo *MockRepository)
		wantErr   error
	}{
		{
			name: "stored with trimmed text",
			to:   nimal,
			text: "  is the room still free?  ",
			setupMock: func(repo *MockRepository) {
				repo.On("GetUserByUID", mock.Anything, nimal).Return(&models.User{UUID: nimal}, nil).Once()
				repo.On("CreateMessage", mock.Anything, models.Message{
					SenderUID: kasun, ToUID: nimal, Text: "is the room still free?", CreatedAt: now,
				}).Return(&models.Message{ID: 3, SenderUID: kasun, ToUID: nimal, Text: "is the room still free?", CreatedAt: now}, nil).Once()
			},
		},
		{name: "malformed recipient", to: "nimal", text: "hi", wantErr: ErrInvalidPeerUser},
		{name: "to yourself", to: kasun, text: "hi", wantErr: ErrSelfMessage},
		{name: "blank text", to: nimal, text: " \n ", wantErr: ErrEmptyMessage},
		{name: "too long", to: nimal, text: strings.Repeat("ක", MaxMessageLength+1), wantErr: ErrMessageTooLong},
		{
			name: "unknown recipient",
			to:   nimal,
			text: "hi",
			setupMock: func(repo *MockRepository) {
				repo.On("GetUserByUID", mock.Anything, nimal).Return(nil, apperr.ErrUserNotFound).Once()
			},
			wantErr: apperr.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			m, err := newService(repo).Send(context.Background(), kasun, tt.to, tt.text)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				repo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(3), m.ID)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestChatService_Conversation(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListConversation", mock.Anything, kasun, nimal).Return([]*models.Message{
		{ID: 1, SenderUID: kasun, ToUID: nimal, Text: "hello", CreatedAt: now},
		{ID: 2, SenderUID: nimal, ToUID: kasun, Text: "hi, come by at six", CreatedAt: now.Add(time.Minute)},
	}, nil).Once()

	got, err := newService(repo).Conversation(context.Background(), kasun, nimal)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].FromSelf)
	assert.False(t, got[1].FromSelf)
	assert.Equal(t, "hi, come by at six", got[1].Text)

	_, err = newService(new(MockRepository)).Conversation(context.Background(), kasun, "bogus")
	require.ErrorIs(t, err, ErrInvalidPeerUser)
}
