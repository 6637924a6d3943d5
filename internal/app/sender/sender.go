// Package sender собирает потребителя очереди писем.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/rivve/boarding-house/internal/config"
	"github.com/rivve/boarding-house/internal/lib/rabbitmq"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/lib/smtp"
	senderservice "github.com/rivve/boarding-house/internal/services/sender"
)

// App читает уведомления из RabbitMQ и отправляет их по SMTP.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// New создает новый экземпляр приложения sender.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	senderService, err := senderservice.NewSenderService(smtp.NewTransport(cfg.SMTP, logger), logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to init sender: %w", err)
	}

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run потребляет очередь до отмены контекста, дожидается текущего письма
// и закрывает соединения.
func (a *App) Run(ctx context.Context) error {
	wait, err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.EmailQueue, a.logger, a.senderService.HandleMessage)
	if err != nil {
		a.logger.Error("failed to start email consumer", sl.Err(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")
	wait()

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return nil
}
