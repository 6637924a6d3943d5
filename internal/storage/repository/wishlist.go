package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/models"
)

// ToggleWishlist добавляет объявление в избранное или убирает его оттуда.
// Возвращает true, если объявление добавлено.
func (s *Storage) ToggleWishlist(ctx context.Context, userUID string, listingID int64) (bool, error) {
	const op = "storage.ToggleWishlist"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	var added bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM wishlist WHERE user_uid = $1 AND listing_id = $2`, userUID, listingID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO wishlist (user_uid, listing_id) VALUES ($1, $2)
			 ON CONFLICT (user_uid, listing_id) DO NOTHING`, userUID, listingID)
		if err != nil {
			if pgCode(err) == pgForeignKeyViolation {
				return apperr.ErrListingNotFound
			}
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return added, nil
}

// ListWishlist возвращает избранные объявления пользователя.
func (s *Storage) ListWishlist(ctx context.Context, userUID string) ([]*models.Listing, error) {
	const op = "storage.ListWishlist"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+listingColumns+listingFrom+`
		 JOIN wishlist w ON w.listing_id = l.id
		 WHERE w.user_uid = $1
		 ORDER BY w.created_at DESC`, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	listings := make([]*models.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return listings, nil
}
