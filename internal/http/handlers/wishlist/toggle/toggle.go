// Package toggle добавляет объявление в избранное или убирает его оттуда.
package toggle

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
	Toggle(ctx context.Context, userUID string, listingID int64) (bool, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Избранное: добавить или убрать
// @Tags Wishlist
// @Produce  json
// @Param listingID path int true "ID объявления"
// @Success 200 {object} response.Response "added=true если добавлено"
// @Failure 404 {object} response.ErrorResponse
// @Router /wishlist/{listingID} [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.wishlist.toggle"

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

	listingID, err := strconv.ParseInt(chi.URLParam(r, "listingID"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	added, err := h.service.Toggle(r.Context(), userUID, listingID)
	if err != nil {
		log.Error("failed to toggle wishlist", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"listing_id": listingID,
		"added":      added,
	}))
}
