package repository

import (
	"context"
	"fmt"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/models"
)

const maxConversationMessages = 500

// CreateMessage сохраняет сообщение. Получатель должен существовать.
func (s *Storage) CreateMessage(ctx context.Context, m models.Message) (*models.Message, error) {
	const op = "storage.CreateMessage"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	saved := m
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO messages (sender_uid, to_uid, text, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`, m.SenderUID, m.ToUID, m.Text, m.CreatedAt).Scan(&saved.ID, &saved.CreatedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &saved, nil
}

// ListConversation возвращает переписку двух пользователей, старые первыми.
// Отдаются последние maxConversationMessages сообщений.
func (s *Storage) ListConversation(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	const op = "storage.ListConversation"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, sender_uid, to_uid, text, created_at FROM (
		     SELECT id, sender_uid, to_uid, text, created_at FROM messages
		     WHERE LEAST(sender_uid, to_uid) = LEAST($1::uuid, $2::uuid)
		       AND GREATEST(sender_uid, to_uid) = GREATEST($1::uuid, $2::uuid)
		     ORDER BY created_at DESC, id DESC
		     LIMIT $3
		 ) m
		 ORDER BY created_at, id`, userA, userB, maxConversationMessages)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SenderUID, &m.ToUID, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return messages, nil
}
