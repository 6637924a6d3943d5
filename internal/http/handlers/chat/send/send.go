// Package send реализует отправку личного сообщения.
package send

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
)

// Request получатель и текст сообщения.
type Request struct {
	To   string `json:"to" validate:"required"`
	Text string `json:"text" validate:"required"`
}

type Service interface {
	Send(ctx context.Context, senderUID, toUID, text string) (*models.Message, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Отправить сообщение
// @Tags Messages
// @Accept  json
// @Produce  json
// @Param request body Request true "Сообщение"
// @Success 201 {object} response.Response "Сохраненное сообщение"
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse "Получатель не найден"
// @Router /messages [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.chat.send"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	senderUID, ok := middlewarectx.UserUIDFrom(r.Context())
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

	msg, err := h.service.Send(r.Context(), senderUID, req.To, req.Text)
	if err != nil {
		log.Warn("failed to send message", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.OKWithData(msg))
}
