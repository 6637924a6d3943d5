// Package update реализует изменение объявления владельцем.
package update

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

// Request изменяемые поля объявления, отсутствующие поля не меняются.
type Request struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=5000"`
	Price       *int64   `json:"price" validate:"omitempty,min=0"`
	HousingType *string  `json:"housing_type" validate:"omitempty,min=1"`
	RoomType    *string  `json:"room_type"`
	Residents   *int     `json:"residents" validate:"omitempty,min=1"`
	Facilities  []string `json:"facilities"`
	Images      []string `json:"images" validate:"max=20"`
}

type Service interface {
	Update(ctx context.Context, landlordUID string, id int64, upd models.ListingUpdate) (*models.Listing, error)
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
// @Summary Изменить объявление
// @Description Меняет только переданные поля. Вместимость не может быть меньше числа жильцов.
// @Tags Listings
// @Accept  json
// @Produce  json
// @Param id path int true "ID объявления"
// @Param request body Request true "Изменяемые поля"
// @Success 200 {object} response.Response "Объявление после изменения"
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse "Не владелец объявления"
// @Failure 404 {object} response.ErrorResponse
// @Router /listings/{id} [put]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.listing.update"

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

	listing, err := h.service.Update(r.Context(), landlordUID, id, models.ListingUpdate{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		HousingType: req.HousingType,
		RoomType:    req.RoomType,
		Residents:   req.Residents,
		Facilities:  req.Facilities,
		Images:      req.Images,
	})
	if err != nil {
		log.Warn("failed to update listing", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("listing updated", slog.Int64("listing_id", id))
	render.JSON(w, r, response.OKWithData(listing))
}
