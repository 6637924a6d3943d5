// Package remove реализует удаление объявления владельцем.
package remove

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/rivve/boarding-house/internal/http/middlewarectx"
	"github.com/rivve/boarding-house/internal/http/response"
	"github.com/rivve/boarding-house/internal/lib/sl"
)

type Service interface {
	Delete(ctx context.Context, landlordUID string, id int64) error
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Удалить объявление
// @Description Вместе с объявлением удаляются его отзывы и записи в избранном.
// @Tags Listings
// @Produce  json
// @Param id path int true "ID объявления"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.ErrorResponse "Не владелец объявления"
// @Failure 404 {object} response.ErrorResponse
// @Router /listings/{id} [delete]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.listing.remove"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	landlordUID, ok := middlewarectx.UserUIDFrom(r.Context())
	if !ok {
		log.Error("user UID not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	if err := h.service.Delete(r.Context(), landlordUID, id); err != nil {
		log.Warn("failed to delete listing", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("listing deleted", slog.Int64("listing_id", id))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"id": id,
	}))
}
