// Package search реализует поиск объявлений по фильтрам из query-параметров.
//
// Объявления владельцев с премиум-подпиской выдаются первыми.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/rivve/boarding-house/internal/http/response"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/models"
)

type Service interface {
	Search(ctx context.Context, f models.ListingFilter) ([]*models.Listing, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Поиск объявлений
// @Tags Listings
// @Produce  json
// @Param q query string false "Текст в заголовке, описании или адресе"
// @Param min_price query int false "Минимальная цена"
// @Param max_price query int false "Максимальная цена"
// @Param housing_type query string false "Тип жилья"
// @Param room_type query string false "Тип комнаты"
// @Param facility query string false "Удобство"
// @Param lat query number false "Широта центра поиска"
// @Param lng query number false "Долгота центра поиска"
// @Param radius_km query number false "Радиус поиска в км"
// @Param vacant query bool false "Только со свободными местами"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /listings [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.listing.search"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		log.Info("invalid search query", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
		return
	}

	listings, err := h.service.Search(r.Context(), filter)
	if err != nil {
		log.Error("failed to search listings", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"list_count": len(listings),
		"listings":   listings,
	}))
}

// ParseFilter собирает фильтр поиска из query-параметров.
func ParseFilter(q url.Values) (models.ListingFilter, error) {
	f := models.ListingFilter{
		Query:       q.Get("q"),
		HousingType: q.Get("housing_type"),
		RoomType:    q.Get("room_type"),
		Facility:    q.Get("facility"),
	}

	var err error
	if f.MinPrice, err = optInt64(q, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = optInt64(q, "max_price"); err != nil {
		return f, err
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, fmt.Errorf("min_price must not exceed max_price")
	}

	if v := q.Get("vacant"); v != "" {
		if f.OnlyVacant, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("vacant must be a boolean")
		}
	}

	lat, lng := q.Get("lat"), q.Get("lng")
	if lat != "" || lng != "" {
		var p models.GeoPoint
		if p.Lat, err = strconv.ParseFloat(lat, 64); err != nil || p.Lat < -90 || p.Lat > 90 {
			return f, fmt.Errorf("lat must be a number between -90 and 90")
		}
		if p.Lng, err = strconv.ParseFloat(lng, 64); err != nil || p.Lng < -180 || p.Lng > 180 {
			return f, fmt.Errorf("lng must be a number between -180 and 180")
		}
		f.Near = &p
		if v := q.Get("radius_km"); v != "" {
			if f.RadiusKm, err = strconv.ParseFloat(v, 64); err != nil || f.RadiusKm < 0 {
				return f, fmt.Errorf("radius_km must be a non-negative number")
			}
		}
	}

	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, fmt.Errorf("limit must be a non-negative integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			return f, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	return f, nil
}

func optInt64(q url.Values, key string) (*int64, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return &n, nil
}
