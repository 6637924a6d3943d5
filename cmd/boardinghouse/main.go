// Package main RiVVE Boarding House API
//
// @title           RiVVE Boarding House API
// @version         1.0
// @description     API площадки аренды жилья для студентов: объявления, избранное, отзывы и премиум-подписки
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.email  support@rivve.lk

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/rivve/boarding-house/docs"
	"github.com/rivve/boarding-house/internal/app/boardinghouse"
	"github.com/rivve/boarding-house/internal/config"
	"github.com/rivve/boarding-house/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting boardinghouse", slog.String("env", cfg.Env))
	logger.Debug("loaded config", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := boardinghouse.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("boardinghouse stopped gracefully")
}
