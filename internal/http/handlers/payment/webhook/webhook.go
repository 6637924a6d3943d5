// Package webhook принимает события платежного шлюза.
//
// Тело запроса читается целиком и передается сервису вместе с подписью из заголовка
// X-Gateway-Signature. Без валидной подписи событие не обрабатывается.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/rivve/boarding-house/internal/gateway"
	"github.com/rivve/boarding-house/internal/http/response"
	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/services/subscription"
)

const maxBodyBytes = 1 << 20

type Service interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (subscription.Outcome, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Webhook платежного шлюза
// @Description Принимает checkout.completed, payment.failed и subscription.cancelled. Повторная доставка безопасна.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param X-Gateway-Signature header string true "base64 HMAC-SHA256 тела"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или тело"
// @Failure 404 {object} response.ErrorResponse "Платеж не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки, шлюз повторит доставку"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	outcome, err := h.service.HandleWebhook(r.Context(), body, r.Header.Get(gateway.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrInvalidSignature):
			log.Warn("rejected webhook with invalid signature",
				sl.Security(),
				slog.String("remote_addr", r.RemoteAddr),
			)
		case apperr.KindOf(err) == apperr.KindNotFound:
			log.Warn("webhook for unknown payment", sl.Err(err))
		default:
			log.Error("failed to process webhook", sl.Err(err))
		}
		response.Fail(w, r, err)
		return
	}

	switch outcome {
	case subscription.OutcomeRejected, subscription.OutcomeUnreconciled:
		log.Warn("webhook acknowledged without activation", slog.String("outcome", string(outcome)))
	default:
		log.Info("webhook processed", slog.String("outcome", string(outcome)))
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"outcome": outcome,
	}))
}
