// Package checkout реализует оформление премиум-подписки через платежный шлюз.
package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/rivve/boarding-house/internal/http/middlewarectx"
	"github.com/rivve/boarding-house/internal/http/response"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/models"
	"github.com/rivve/boarding-house/internal/services/subscription"
)

// Request выбранный тариф и срок.
type Request struct {
	Plan     string `json:"plan" validate:"required,oneof=gold platinum"`
	Duration string `json:"duration" validate:"required,oneof=monthly yearly"`
}

// Service описывает создание checkout-сессии.
type Service interface {
	CreateCheckout(ctx context.Context, userUID string, plan models.PlanType, duration models.PlanDuration) (*subscription.Checkout, error)
}

// Handler обрабатывает запросы на оформление подписки.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Оформить подписку
// @Description Создает сессию оплаты у шлюза и платеж в статусе pending. Клиента нужно перенаправить по redirect_url.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request true "Тариф и срок"
// @Success 201 {object} response.Response "Сессия оплаты создана"
// @Failure 400 {object} response.ErrorResponse "Тариф недоступен или email не подтвержден"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Уже подписан или понижение тарифа"
// @Failure 502 {object} response.ErrorResponse "Ошибка платежного шлюза"
// @Router /payments/checkout [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.checkout"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	checkout, err := h.service.CreateCheckout(r.Context(), userUID, models.PlanType(req.Plan), models.PlanDuration(req.Duration))
	if err != nil {
		log.Error("failed to create checkout", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("checkout created", slog.String("transaction_id", checkout.TransactionID))
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.OKWithData(checkout))
}
