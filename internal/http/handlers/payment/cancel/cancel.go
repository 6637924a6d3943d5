// Package cancel реализует отмену подписки пользователем.
// Доступ к премиуму сохраняется до окончания оплаченного периода.
package cancel

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
	Cancel(ctx context.Context, userUID string) (*models.Payment, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Отменить подписку
// @Tags Payments
// @Produce  json
// @Success 200 {object} response.Response "Отмененный платеж"
// @Failure 404 {object} response.ErrorResponse "Нет действующей подписки"
// @Failure 502 {object} response.ErrorResponse "Шлюз не подтвердил отмену"
// @Router /payments/cancel [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.cancel"

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

	payment, err := h.service.Cancel(r.Context(), userUID)
	if err != nil {
		log.Error("failed to cancel subscription", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("subscription cancelled", slog.Int64("payment_id", payment.ID))
	render.JSON(w, r, response.OKWithData(payment))
}
