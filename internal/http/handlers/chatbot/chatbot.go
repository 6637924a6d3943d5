// Package chatbot проксирует вопросы пользователя ассистенту площадки.
package chatbot

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

type Request struct {
	Message string `json:"message" validate:"required"`
}

type Service interface {
	Ask(ctx context.Context, message string) (string, error)
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
// @Summary Вопрос ассистенту
// @Tags Chatbot
// @Accept  json
// @Produce  json
// @Param request body Request true "Сообщение"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse "OpenAI недоступен"
// @Router /chatbot [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.chatbot"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	reply, err := h.service.Ask(r.Context(), req.Message)
	if err != nil {
		log.Error("chatbot failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"reply": reply,
	}))
}
