// Package health отвечает на проверку готовности: база данных и redis.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/rivve/boarding-house/internal/http/response"
	"github.com/rivve/boarding-house/internal/lib/sl"
)

// Checker проверка одной зависимости.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc адаптер функции к Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handler struct {
	log    *slog.Logger
	checks map[string]Checker
}

func New(log *slog.Logger, checks map[string]Checker) *Handler {
	return &Handler{log: log, checks: checks}
}

// ServeHTTP godoc
// @Summary Проверка готовности
// @Tags Health
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.log.Error("dependency is not ready", slog.String("op", op), slog.String("dependency", name), sl.Err(err))
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, response.Response{Status: response.StatusError, Error: "not ready", Data: status})
		return
	}
	render.JSON(w, r, response.OKWithData(status))
}
