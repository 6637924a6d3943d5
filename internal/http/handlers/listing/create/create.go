// Package create реализует публикацию объявления владельцем жилья.
package create

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

// Request данные нового объявления. Цена в минимальных единицах валюты.
type Request struct {
	Title            string   `json:"title" validate:"required,max=200"`
	Description      string   `json:"description" validate:"max=5000"`
	Address          string   `json:"address" validate:"required"`
	Lat              float64  `json:"lat" validate:"min=-90,max=90"`
	Lng              float64  `json:"lng" validate:"min=-180,max=180"`
	Price            int64    `json:"price" validate:"required,min=1"`
	HousingType      string   `json:"housing_type" validate:"required"`
	RoomType         string   `json:"room_type"`
	Residents        int      `json:"residents" validate:"required,min=1"`
	CurrentResidents int      `json:"current_residents" validate:"min=0"`
	Facilities       []string `json:"facilities"`
	Images           []string `json:"images" validate:"max=20"`
}

type Service interface {
	Create(ctx context.Context, landlordUID string, l models.Listing) (int64, error)
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
// @Summary Создать объявление
// @Tags Listings
// @Accept  json
// @Produce  json
// @Param request body Request true "Объявление"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse "Только для владельцев"
// @Router /listings [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.listing.create"

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

	id, err := h.service.Create(r.Context(), landlordUID, models.Listing{
		Title:            req.Title,
		Description:      req.Description,
		Address:          req.Address,
		Location:         models.GeoPoint{Lat: req.Lat, Lng: req.Lng},
		Price:            req.Price,
		HousingType:      req.HousingType,
		RoomType:         req.RoomType,
		Residents:        req.Residents,
		CurrentResidents: req.CurrentResidents,
		Facilities:       req.Facilities,
		Images:           req.Images,
	})
	if err != nil {
		log.Error("failed to create listing", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("listing created", slog.Int64("listing_id", id))
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"id": id,
	}))
}
