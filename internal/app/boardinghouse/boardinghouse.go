// Package boardinghouse собирает HTTP API площадки: хранилище, кэш, брокер,
// платежный шлюз, сервисы и маршруты.
package boardinghouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	openai "github.com/sashabaranov/go-openai"
	"github.com/streadway/amqp"

	"github.com/rivve/boarding-house/internal/config"
	"github.com/rivve/boarding-house/internal/gateway"
	"github.com/rivve/boarding-house/internal/http/handlers/health"
	"github.com/rivve/boarding-house/internal/lib/clock"
	"github.com/rivve/boarding-house/internal/lib/jwt"
	"github.com/rivve/boarding-house/internal/lib/rabbitmq"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/migrations"
	authservice "github.com/rivve/boarding-house/internal/services/auth"
	chatservice "github.com/rivve/boarding-house/internal/services/chat"
	chatbotservice "github.com/rivve/boarding-house/internal/services/chatbot"
	listingservice "github.com/rivve/boarding-house/internal/services/listing"
	"github.com/rivve/boarding-house/internal/services/notifier"
	"github.com/rivve/boarding-house/internal/services/subscription"
	wishlistservice "github.com/rivve/boarding-house/internal/services/wishlist"
	"github.com/rivve/boarding-house/internal/storage/cache"
	"github.com/rivve/boarding-house/internal/storage/repository"
	"github.com/rivve/boarding-house/internal/ws"
)

// App HTTP API с websocket-лентой заполненности.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
	hub    *ws.Hub
}

// New подключает зависимости, применяет миграции и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	version, err := migrations.Run(db.DB, cfg.MigrationsPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("migrations applied", slog.Uint64("version", uint64(version)))

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	clk := clock.Real{}
	notify := notifier.New(ch)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	hub := ws.NewHub(logger)

	deps := Services{
		Auth: authservice.NewAuthService(db, jwtMaker, notify, clk, cfg.AppBaseURL, logger),
		Subscription: subscription.NewService(db, gateway.NewClient(cfg.Gateway), notify,
			subscription.NewPolicy(cfg.Plans), clk, cfg.Gateway.WebhookSecret, logger),
		Listing: listingservice.NewListingService(db, cacheRedis, cacheRedis, notify,
			clk, cfg.Wishlist.NotifyTTL, cfg.AppBaseURL, logger),
		Wishlist: wishlistservice.NewWishlistService(db, logger),
		Chat:     chatservice.NewChatService(db, clk, logger),
		Chatbot:  chatbotservice.NewChatbotService(openai.NewClient(cfg.Chatbot.APIKey), cfg.Chatbot.Model, logger),
		Tokens:   jwtMaker,
		Hub:      hub,
		Ready: map[string]health.Checker{
			"postgres": health.CheckerFunc(db.DB.PingContext),
			"redis":    health.CheckerFunc(func(ctx context.Context) error { return cacheRedis.Db.Ping(ctx).Err() }),
		},
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg.HTTPServer, deps)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
		conn:   conn,
		ch:     ch,
		hub:    hub,
	}, nil
}

// Run запускает HTTP-сервер и ленту заполненности, при отмене контекста
// корректно останавливает сервер и закрывает соединения.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Run(ctx)
	go func() {
		if err := a.hub.Listen(ctx, a.cache, cache.OccupancyChannel); err != nil {
			a.logger.Error("occupancy feed stopped", sl.Err(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}
	a.close()
	return err
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
