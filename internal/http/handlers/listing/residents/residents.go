// Package residents реализует учет заселения: занять или освободить место.
//
// Оба действия доступны только владельцу объявления. Освобождение места
// уведомляет пользователей, добавивших объявление в избранное.
package residents

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
	"github.com/rivve/boarding-house/internal/models"
)

// Op изменение заселения.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

type Service interface {
	AddResident(ctx context.Context, landlordUID string, id int64) (*models.Listing, error)
	RemoveResident(ctx context.Context, landlordUID string, id int64) (*models.Listing, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
	op      Op
}

func New(log *slog.Logger, service Service, op Op) *Handler {
	return &Handler{log: log, service: service, op: op}
}

// ServeHTTP godoc
// @Summary Изменить число жильцов
// @Description add занимает место, remove освобождает
// @Tags Listings
// @Produce  json
// @Param id path int true "ID объявления"
// @Success 200 {object} response.Response "Объявление после изменения"
// @Failure 403 {object} response.ErrorResponse "Не владелец объявления"
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse "Нет свободных мест или жильцов"
// @Router /listings/{id}/residents/add [post]
// @Router /listings/{id}/residents/remove [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.listing.residents"

	log := h.log.With(
		slog.String("op", op),
		slog.String("action", string(h.op)),
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

	var listing *models.Listing
	if h.op == OpRemove {
		listing, err = h.service.RemoveResident(r.Context(), landlordUID, id)
	} else {
		listing, err = h.service.AddResident(r.Context(), landlordUID, id)
	}
	if err != nil {
		log.Warn("failed to change residents", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("residents changed", slog.Int64("listing_id", id), slog.Int("current_residents", listing.CurrentResidents))
	render.JSON(w, r, response.OKWithData(listing))
}
