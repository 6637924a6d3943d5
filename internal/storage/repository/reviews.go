package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/models"
)

// AddReview сохраняет отзыв и обновляет рейтинг объявления в одной транзакции.
func (s *Storage) AddReview(ctx context.Context, r models.Review) (int64, error) {
	const op = "storage.AddReview"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO reviews (listing_id, user_uid, rating, comment)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`, r.ListingID, r.UserUID, r.Rating, r.Comment).Scan(&id)
		if err != nil {
			switch pgCode(err) {
			case pgUniqueViolation:
				return apperr.ErrAlreadyReviewed
			case pgForeignKeyViolation:
				return apperr.ErrListingNotFound
			}
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE listings SET rating_sum = rating_sum + $2, rating_count = rating_count + 1
			 WHERE id = $1`, r.ListingID, r.Rating)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// ListReviews возвращает отзывы объявления, новые первыми.
func (s *Storage) ListReviews(ctx context.Context, listingID int64) ([]*models.Review, error) {
	const op = "storage.ListReviews"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, listing_id, user_uid, rating, comment, created_at
		 FROM reviews WHERE listing_id = $1
		 ORDER BY created_at DESC, id DESC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	reviews := make([]*models.Review, 0)
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ListingID, &r.UserUID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		reviews = append(reviews, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(reviews) == 0 {
		var exists bool
		err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, listingID).Scan(&exists)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !exists {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrListingNotFound)
		}
	}
	return reviews, nil
}
