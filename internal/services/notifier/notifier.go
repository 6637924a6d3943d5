// Package notifier публикует письма в очередь RabbitMQ для сервиса отправки.
package notifier

import (
	"context"
	"fmt"

	"github.com/rivve/boarding-house/internal/lib/rabbitmq"
	"github.com/rivve/boarding-house/internal/models"
)

type Notifier struct {
	ch rabbitmq.Publisher
}

// New создает Notifier поверх канала RabbitMQ.
func New(ch rabbitmq.Publisher) *Notifier {
	return &Notifier{ch: ch}
}

// Notify ставит письмо в очередь notifications.email.
func (n *Notifier) Notify(ctx context.Context, notification models.Notification) error {
	const op = "notifier.Notify"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if notification.Email == "" {
		return fmt.Errorf("%s: empty recipient", op)
	}
	if err := rabbitmq.PublishMessage(n.ch, rabbitmq.Exchange, rabbitmq.EmailRoutingKey, notification.Template, notification); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
