// Package me возвращает профиль текущего пользователя.
package me

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
	Me(ctx context.Context, userUID string) (*models.User, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Профиль пользователя
// @Tags Users
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /users/me [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.me"

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

	user, err := h.service.Me(r.Context(), userUID)
	if err != nil {
		log.Error("failed to load profile", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(user))
}
