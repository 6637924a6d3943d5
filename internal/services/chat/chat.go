// Package chat реализует личную переписку пользователей.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/lib/clock"
	"github.com/rivve/boarding-house/internal/models"
)

// MaxMessageLength предел длины сообщения в символах.
const MaxMessageLength = 2000

var (
	ErrEmptyMessage    = apperr.New(apperr.KindValidation, "message text must not be empty")
	ErrMessageTooLong  = apperr.New(apperr.KindValidation, fmt.Sprintf("message text must be at most %d characters", MaxMessageLength))
	ErrSelfMessage     = apperr.New(apperr.KindValidation, "cannot send a message to yourself")
	ErrInvalidPeerUser = apperr.New(apperr.KindValidation, "invalid user id")
)

// Repository хранилище сообщений.
type Repository interface {
	CreateMessage(ctx context.Context, m models.Message) (*models.Message, error)
	ListConversation(ctx context.Context, userA, userB string) ([]*models.Message, error)
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
}

type ChatService struct {
	repo  Repository
	clock clock.Clock
	log   *slog.Logger
}

// NewChatService создает новый экземпляр ChatService.
func NewChatService(repo Repository, clk clock.Clock, log *slog.Logger) *ChatService {
	return &ChatService{repo: repo, clock: clk, log: log}
}

// Send сохраняет сообщение от senderUID пользователю toUID.
func (s *ChatService) Send(ctx context.Context, senderUID, toUID, text string) (*models.Message, error) {
	const op = "chat.Send"

	if _, err := uuid.Parse(toUID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPeerUser)
	}
	if senderUID == toUID {
		return nil, fmt.Errorf("%s: %w", op, ErrSelfMessage)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyMessage)
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, fmt.Errorf("%s: %w", op, ErrMessageTooLong)
	}
	if _, err := s.repo.GetUserByUID(ctx, toUID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m, err := s.repo.CreateMessage(ctx, models.Message{
		SenderUID: senderUID,
		ToUID:     toUID,
		Text:      text,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug("message sent", slog.String("op", op), slog.Int64("message_id", m.ID))
	return m, nil
}

// Conversation возвращает переписку selfUID с peerUID, старые сообщения первыми.
func (s *ChatService) Conversation(ctx context.Context, selfUID, peerUID string) ([]models.ConversationMessage, error) {
	const op = "chat.Conversation"

	if _, err := uuid.Parse(peerUID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPeerUser)
	}
	messages, err := s.repo.ListConversation(ctx, selfUID, peerUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]models.ConversationMessage, 0, len(messages))
	for _, m := range messages {
		result = append(result, models.ConversationMessage{
			ID:        m.ID,
			FromSelf:  m.SenderUID == selfUID,
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}
	return result, nil
}
