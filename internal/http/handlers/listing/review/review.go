// Package review реализует добавление и просмотр отзывов об объявлении.
package review

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/rivve/boarding-house/internal/http/middlewarectx"
	"github.com/rivve/boarding-house/internal/http/response"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/models"
)

// Request оценка от 1 до 5 и комментарий.
type Request struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type Service interface {
	AddReview(ctx context.Context, userUID string, listingID int64, rating int, comment string) (int64, error)
	Reviews(ctx context.Context, listingID int64) ([]*models.Review, error)
}

// AddHandler добавляет отзыв.
type AddHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func NewAdd(log *slog.Logger, service Service) *AddHandler {
	return &AddHandler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Оставить отзыв
// @Tags Listings
// @Accept  json
// @Produce  json
// @Param id path int true "ID объявления"
// @Param request body Request true "Отзыв"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Отзыв уже оставлен"
// @Router /listings/{id}/reviews [post]
// @Security BearerAuth
func (h *AddHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.listing.review.add"

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

	listingID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
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
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	id, err := h.service.AddReview(r.Context(), userUID, listingID, req.Rating, req.Comment)
	if err != nil {
		log.Error("failed to add review", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"id": id,
	}))
}

// ListHandler возвращает отзывы объявления.
type ListHandler struct {
	log     *slog.Logger
	service Service
}

func NewList(log *slog.Logger, service Service) *ListHandler {
	return &ListHandler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Отзывы объявления
// @Tags Listings
// @Produce  json
// @Param id path int true "ID объявления"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /listings/{id}/reviews [get]
func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.listing.review.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	listingID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	reviews, err := h.service.Reviews(r.Context(), listingID)
	if err != nil {
		log.Error("failed to list reviews", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"list_count": len(reviews),
		"reviews":    reviews,
	}))
}
