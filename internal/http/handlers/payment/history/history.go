// Package history возвращает историю платежей пользователя.
package history

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/rivve/boarding-house/internal/http/middlewarectx"
	"github.com/rivve/boarding-house/internal/http/response"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/models"
)

type Service interface {
	History(ctx context.Context, userUID string) ([]*models.Payment, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary История платежей
// @Description Все платежи пользователя, новые сверху
// @Tags Payments
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /payments/history [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.history"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := middlewarectx.UserUIDFrom(r.Context())
	if !ok {
		log.Error("user UID not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	payments, err := h.service.History(r.Context(), userUID)
	if err != nil {
		log.Error("failed to list payments", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Debug("list payments", slog.Int("count", len(payments)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"list_count": len(payments),
		"payments":   payments,
	}))
}
