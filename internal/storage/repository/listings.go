package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/models"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	earthRadiusKm      = 6371.0
)

const listingColumns = `l.id, l.landlord_uid, l.title, l.description, l.address, l.lat, l.lng, l.price,
	l.housing_type, l.room_type, l.residents, l.current_residents, l.facilities, l.images,
	l.rating_sum, l.rating_count, l.view_count, l.contact_count, u.is_premium, l.created_at`

const listingFrom = ` FROM listings l JOIN users u ON u.uid = l.landlord_uid`

func scanListing(row rowScanner) (*models.Listing, error) {
	var (
		l                  models.Listing
		facilities, images []byte
	)
	err := row.Scan(&l.ID, &l.LandlordUID, &l.Title, &l.Description, &l.Address,
		&l.Location.Lat, &l.Location.Lng, &l.Price, &l.HousingType, &l.RoomType,
		&l.Residents, &l.CurrentResidents, &facilities, &images,
		&l.RatingSum, &l.RatingCount, &l.ViewCount, &l.ContactCount, &l.Boosted, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(facilities, &l.Facilities); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(images, &l.Images); err != nil {
		return nil, err
	}
	if l.RatingCount > 0 {
		l.Rating = float64(l.RatingSum) / float64(l.RatingCount)
	}
	return &l, nil
}

func jsonArray(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

// CreateListing сохраняет объявление и возвращает его ID.
func (s *Storage) CreateListing(ctx context.Context, l models.Listing) (int64, error) {
	const op = "storage.CreateListing"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	facilities, err := jsonArray(l.Facilities)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	images, err := jsonArray(l.Images)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO listings (landlord_uid, title, description, address, lat, lng, price,
			      housing_type, room_type, residents, current_residents, facilities, images)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			  RETURNING id`
	var id int64
	err = s.DB.QueryRowContext(ctx, query,
		l.LandlordUID, l.Title, l.Description, l.Address, l.Location.Lat, l.Location.Lng, l.Price,
		l.HousingType, l.RoomType, l.Residents, l.CurrentResidents, string(facilities), string(images),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// GetListing возвращает объявление по ID.
func (s *Storage) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	const op = "storage.GetListing"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	l, err := scanListing(s.DB.QueryRowContext(ctx, `SELECT `+listingColumns+listingFrom+` WHERE l.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrListingNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return l, nil
}

// UpdateListing меняет переданные поля объявления.
// Вместимость не может стать меньше текущего числа жильцов: тогда ErrInvalidOperation.
func (s *Storage) UpdateListing(ctx context.Context, id int64, upd models.ListingUpdate) (*models.Listing, error) {
	const op = "storage.UpdateListing"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var facilities, images *string
	if upd.Facilities != nil {
		raw, err := jsonArray(upd.Facilities)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		v := string(raw)
		facilities = &v
	}
	if upd.Images != nil {
		raw, err := jsonArray(upd.Images)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		v := string(raw)
		images = &v
	}

	query := `WITH l AS (
			      UPDATE listings
			      SET title = COALESCE($2, title),
			          description = COALESCE($3, description),
			          price = COALESCE($4, price),
			          housing_type = COALESCE($5, housing_type),
			          room_type = COALESCE($6, room_type),
			          residents = COALESCE($7, residents),
			          facilities = COALESCE($8::jsonb, facilities),
			          images = COALESCE($9::jsonb, images)
			      WHERE id = $1 AND current_residents <= COALESCE($7, residents)
			      RETURNING *
			  )
			  SELECT ` + listingColumns + ` FROM l JOIN users u ON u.uid = l.landlord_uid`
	l, err := scanListing(s.DB.QueryRowContext(ctx, query, id,
		upd.Title, upd.Description, upd.Price, upd.HousingType, upd.RoomType, upd.Residents, facilities, images))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.listingExists(ctx, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return nil, fmt.Errorf("%s: %w", op, apperr.ErrInvalidOperation)
}

// DeleteListing удаляет объявление вместе с отзывами и записями избранного.
func (s *Storage) DeleteListing(ctx context.Context, id int64) error {
	const op = "storage.DeleteListing"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, apperr.ErrListingNotFound)
	}
	return nil
}

// IncrementViews увеличивает счетчик просмотров.
func (s *Storage) IncrementViews(ctx context.Context, id int64) error {
	return s.increment(ctx, "storage.IncrementViews", "view_count", id)
}

// IncrementContacts увеличивает счетчик обращений к владельцу.
func (s *Storage) IncrementContacts(ctx context.Context, id int64) error {
	return s.increment(ctx, "storage.IncrementContacts", "contact_count", id)
}

func (s *Storage) increment(ctx context.Context, op, column string, id int64) error {
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE listings SET `+column+` = `+column+` + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, apperr.ErrListingNotFound)
	}
	return nil
}

// distanceExpr расстояние в километрах по формуле гаверсинусов.
func distanceExpr(latParam, lngParam string) string {
	return fmt.Sprintf(`(%[3]f * 2 * asin(sqrt(
		power(sin(radians(l.lat - %[1]s) / 2), 2) +
		cos(radians(%[1]s)) * cos(radians(l.lat)) * power(sin(radians(l.lng - %[2]s) / 2), 2))))`,
		latParam, lngParam, earthRadiusKm)
}

// SearchListings ищет объявления по фильтру.
// Объявления владельцев с премиум-подпиской идут первыми.
func (s *Storage) SearchListings(ctx context.Context, f models.ListingFilter) ([]*models.Listing, error) {
	const op = "storage.SearchListings"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + q + "%")
		where = append(where, fmt.Sprintf("(l.title ILIKE %[1]s OR l.description ILIKE %[1]s OR l.address ILIKE %[1]s)", p))
	}
	if f.MinPrice != nil {
		where = append(where, "l.price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		where = append(where, "l.price <= "+arg(*f.MaxPrice))
	}
	if f.HousingType != "" {
		where = append(where, "l.housing_type = "+arg(f.HousingType))
	}
	if f.RoomType != "" {
		where = append(where, "l.room_type = "+arg(f.RoomType))
	}
	if f.Facility != "" {
		where = append(where, "l.facilities @> jsonb_build_array("+arg(f.Facility)+"::text)")
	}
	if f.OnlyVacant {
		where = append(where, "l.current_residents < l.residents")
	}

	order := "u.is_premium DESC, l.created_at DESC, l.id DESC"
	if f.Near != nil {
		dist := distanceExpr(arg(f.Near.Lat), arg(f.Near.Lng))
		if f.RadiusKm > 0 {
			where = append(where, dist+" <= "+arg(f.RadiusKm))
		}
		order = "u.is_premium DESC, " + dist + ", l.id DESC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := max(f.Offset, 0)

	query := `SELECT ` + listingColumns + listingFrom
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + order + " LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := s.DB.QueryContext(ctx, query, args...)
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

// AddResident занимает одно место, если оно есть.
// Возвращает ErrInvalidOperation, если объявление заполнено.
func (s *Storage) AddResident(ctx context.Context, id int64) (*models.Listing, error) {
	return s.changeOccupancy(ctx, "storage.AddResident",
		`current_residents = current_residents + 1`, `current_residents < residents`, id)
}

// RemoveResident освобождает одно место.
// Возвращает ErrInvalidOperation, если жильцов нет.
func (s *Storage) RemoveResident(ctx context.Context, id int64) (*models.Listing, error) {
	return s.changeOccupancy(ctx, "storage.RemoveResident",
		`current_residents = current_residents - 1`, `current_residents > 0`, id)
}

// changeOccupancy одно условное обновление: граница проверяется в том же UPDATE.
func (s *Storage) changeOccupancy(ctx context.Context, op, set, bound string, id int64) (*models.Listing, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `WITH l AS (
			      UPDATE listings SET ` + set + `
			      WHERE id = $1 AND ` + bound + `
			      RETURNING *
			  )
			  SELECT ` + listingColumns + ` FROM l JOIN users u ON u.uid = l.landlord_uid`
	l, err := scanListing(s.DB.QueryRowContext(ctx, query, id))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.listingExists(ctx, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return nil, fmt.Errorf("%s: %w", op, apperr.ErrInvalidOperation)
}

// listingExists возвращает ErrListingNotFound, если объявления нет.
func (s *Storage) listingExists(ctx context.Context, id int64) error {
	var exists bool
	if err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.ErrListingNotFound
	}
	return nil
}

// ListWishlisters возвращает пользователей, добавивших объявление в избранное.
func (s *Storage) ListWishlisters(ctx context.Context, listingID int64) ([]models.Wishlister, error) {
	const op = "storage.ListWishlisters"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT u.uid, u.email, u.username, u.is_premium
		 FROM wishlist w JOIN users u ON u.uid = w.user_uid
		 WHERE w.listing_id = $1
		 ORDER BY w.created_at`, listingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []models.Wishlister
	for rows.Next() {
		var w models.Wishlister
		if err := rows.Scan(&w.UserUID, &w.Email, &w.Username, &w.IsPremium); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
