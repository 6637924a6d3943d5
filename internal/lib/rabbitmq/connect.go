// Package rabbitmq содержит подключение к RabbitMQ, объявление очередей,
// публикацию и потребление сообщений уведомлений.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/rivve/boarding-house/internal/config"
	"github.com/rivve/boarding-house/internal/lib/sl"
)

// Exchange обменник уведомлений.
const Exchange = "notifications"

// Connect подключается к брокеру, повторяя попытки cfg.MaxRetries раз
// с паузой cfg.RetryDelay, пока не отменен ctx.
func Connect(ctx context.Context, cfg config.RabbitMQ, log *slog.Logger) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"
	log = log.With(slog.String("op", op))
	attempts := max(cfg.MaxRetries, 1)

	var err error
	for attempt := 1; ; attempt++ {
		var conn *amqp.Connection
		if conn, err = amqp.Dial(cfg.URL); err == nil {
			return conn, nil
		}
		if attempt == attempts {
			break
		}
		log.Warn("rabbitmq is not reachable, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			sl.Err(err),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(cfg.RetryDelay):
		}
	}

	return nil, fmt.Errorf("%s: %w", op, err)
}

// SetupChannel открывает канал, объявляет обменник и привязывает к нему очереди.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: qos: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			q.QueueName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}

		err = ch.QueueBind(
			q.QueueName,
			q.RoutingKey,
			Exchange,
			false,
			nil,
		)
		if err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}
