// Package verifyemail реализует подтверждение email по токену из письма.
package verifyemail

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/rivve/boarding-house/internal/http/response"
	"github.com/rivve/boarding-house/internal/lib/sl"
)

// Request токен подтверждения.
type Request struct {
	Token string `json:"token" validate:"required"`
}

// Service описывает подтверждение email.
type Service interface {
	VerifyEmail(ctx context.Context, token string) error
}

// Handler обрабатывает подтверждение email.
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
// @Summary Подтверждение email
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Токен из письма"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Токен неверный или истек"
// @Router /auth/verify-email [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verifyemail"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.VerifyEmail(r.Context(), req.Token); err != nil {
		log.Warn("email verification failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"verified": true,
	}))
}
