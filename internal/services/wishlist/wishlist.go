// Package wishlist управляет избранными объявлениями пользователя.
package wishlist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rivve/boarding-house/internal/models"
)

// Repository хранилище избранного.
type Repository interface {
	ToggleWishlist(ctx context.Context, userUID string, listingID int64) (bool, error)
	ListWishlist(ctx context.Context, userUID string) ([]*models.Listing, error)
}

type WishlistService struct {
	repo Repository
	log  *slog.Logger
}

// NewWishlistService создает новый экземпляр WishlistService.
func NewWishlistService(repo Repository, log *slog.Logger) *WishlistService {
	return &WishlistService{repo: repo, log: log}
}

// Toggle добавляет объявление в избранное или убирает его. Возвращает true при добавлении.
func (s *WishlistService) Toggle(ctx context.Context, userUID string, listingID int64) (bool, error) {
	const op = "wishlist.Toggle"
	added, err := s.repo.ToggleWishlist(ctx, userUID, listingID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug("wishlist toggled", slog.String("op", op), slog.Int64("listing_id", listingID), slog.Bool("added", added))
	return added, nil
}

// List возвращает избранные объявления пользователя.
func (s *WishlistService) List(ctx context.Context, userUID string) ([]*models.Listing, error) {
	const op = "wishlist.List"
	listings, err := s.repo.ListWishlist(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return listings, nil
}
