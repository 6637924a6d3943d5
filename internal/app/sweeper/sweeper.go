// Package sweeper собирает фоновый процесс истечения подписок.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/rivve/boarding-house/internal/config"
	"github.com/rivve/boarding-house/internal/lib/clock"
	"github.com/rivve/boarding-house/internal/lib/rabbitmq"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/services/notifier"
	sweeperservice "github.com/rivve/boarding-house/internal/services/sweeper"
	"github.com/rivve/boarding-house/internal/storage/repository"
)

// App представляет приложение sweeper.
type App struct {
	sweeperService *sweeperservice.SweeperService
	interval       time.Duration
	db             *repository.Storage
	conn           *amqp.Connection
	ch             *amqp.Channel
	logger         *slog.Logger
}

// waitForDB ждет, пока API применит миграции.
func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		if err := repository.CheckDatabaseReady(ctx, db); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения sweeper.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		closeResources(nil, conn, nil, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, nil, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(ctx, db); err != nil {
		closeResources(ch, conn, db, logger)
		return nil, err
	}

	sweeperService := sweeperservice.NewSweeperService(db, notifier.New(ch), clock.Real{}, cfg.Sweeper.PendingTTL, logger)

	return &App{
		sweeperService: sweeperService,
		interval:       cfg.Sweeper.Interval,
		db:             db,
		conn:           conn,
		ch:             ch,
		logger:         logger,
	}, nil
}

// Run выполняет обходы до отмены контекста и закрывает соединения.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("sweeper started", slog.Duration("interval", a.interval))
	a.sweeperService.Run(ctx, a.interval)
	a.logger.Info("sweeper shutting down gracefully")
	closeResources(a.ch, a.conn, a.db, a.logger)
	return nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, db *repository.Storage, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("failed to close storage", sl.Err(err))
		}
	}
}
