// Package conversation возвращает переписку текущего пользователя с собеседником.
package conversation

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/rivve/boarding-house/internal/http/middlewarectx"
	"github.com/rivve/boarding-house/internal/http/response"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/models"
)

type Service interface {
	Conversation(ctx context.Context, selfUID, peerUID string) ([]models.ConversationMessage, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Переписка с пользователем
// @Description Сообщения в порядке отправки, from_self отмечает отправленные текущим пользователем.
// @Tags Messages
// @Produce  json
// @Param userID path string true "UID собеседника"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /messages/{userID} [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.chat.conversation"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	selfUID, ok := middlewarectx.UserUIDFrom(r.Context())
	if !ok {
		log.Error("user UID not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	messages, err := h.service.Conversation(r.Context(), selfUID, chi.URLParam(r, "userID"))
	if err != nil {
		log.Warn("failed to load conversation", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(messages))
}
