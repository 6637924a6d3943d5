package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/models"
)

const userColumns = `uid, email, username, first_name, last_name, phone, password_hash, role,
	is_premium, is_email_verified, is_phone_verified, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.UUID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Phone,
		&u.PasswordHash, &u.Role, &u.IsPremium, &u.IsEmailVerified, &u.IsPhoneVerified, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser сохраняет нового пользователя и возвращает его UID.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"
	if err := checkCtx(ctx, op); err != nil {
		return "", err
	}

	query := `INSERT INTO users (email, username, first_name, last_name, phone, password_hash, role,
			      verification_token, verification_token_expires)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING uid`
	var uid string
	err := s.DB.QueryRowContext(ctx, query,
		user.Email, user.Username, user.FirstName, user.LastName, user.Phone, user.PasswordHash, user.Role,
		nullString(user.VerificationToken), user.VerificationTokenExpires).Scan(&uid)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return "", fmt.Errorf("%s: %w", op, apperr.ErrEmailTaken)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return uid, nil
}

// GetUserByUID возвращает пользователя по UID.
func (s *Storage) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUserByUID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid = $1`, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// VerifyEmail подтверждает email по токену, если он не истек. Возвращает пользователя.
func (s *Storage) VerifyEmail(ctx context.Context, token string, now time.Time) (*models.User, error) {
	const op = "storage.VerifyEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `UPDATE users
			  SET is_email_verified = TRUE, verification_token = NULL, verification_token_expires = NULL
			  WHERE verification_token = $1 AND verification_token_expires > $2
			  RETURNING ` + userColumns
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, token, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateUserProfile меняет переданные поля профиля.
// Смена телефона сбрасывает его подтверждение.
func (s *Storage) UpdateUserProfile(ctx context.Context, userUID string, upd models.ProfileUpdate) (*models.User, error) {
	const op = "storage.UpdateUserProfile"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `UPDATE users
			  SET first_name = COALESCE($2, first_name),
			      last_name = COALESCE($3, last_name),
			      is_phone_verified = CASE WHEN $4::text IS NOT NULL AND $4::text <> phone
			                               THEN FALSE ELSE is_phone_verified END,
			      phone = COALESCE($4, phone)
			  WHERE uid = $1
			  RETURNING ` + userColumns
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID, upd.FirstName, upd.LastName, upd.Phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// entitledExpr условие действующего премиум-доступа для пользователя u,
// nowParam номер параметра с текущим временем.
func entitledExpr(nowParam string) string {
	return `EXISTS (
	SELECT 1 FROM payments p
	WHERE p.user_uid = u.uid
	  AND p.subscription_expiry > ` + nowParam + `
	  AND (p.status = 'success' OR (p.status = 'cancelled' AND p.cancel_reason = 'user'))
)`
}

// RecomputePremium пересчитывает is_premium пользователя по его платежам.
// Возвращает новое значение и признак того, что оно изменилось.
func (s *Storage) RecomputePremium(ctx context.Context, userUID string, now time.Time) (premium bool, changed bool, err error) {
	const op = "storage.RecomputePremium"
	if err := checkCtx(ctx, op); err != nil {
		return false, false, err
	}

	query := `WITH old AS (SELECT is_premium FROM users WHERE uid = $1 FOR UPDATE)
			  UPDATE users u SET is_premium = ` + entitledExpr("$2") + `
			  WHERE u.uid = $1
			  RETURNING u.is_premium, (SELECT is_premium FROM old)`
	var before bool
	err = s.DB.QueryRowContext(ctx, query, userUID, now).Scan(&premium, &before)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, fmt.Errorf("%s: %w", op, apperr.ErrUserNotFound)
		}
		return false, false, fmt.Errorf("%s: %w", op, err)
	}
	return premium, premium != before, nil
}

// DowngradeUnentitledUsers снимает премиум со всех пользователей без действующих платежей.
// Возвращает пониженных пользователей.
func (s *Storage) DowngradeUnentitledUsers(ctx context.Context, now time.Time) ([]*models.User, error) {
	const op = "storage.DowngradeUnentitledUsers"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `UPDATE users u SET is_premium = FALSE
			  WHERE u.is_premium AND NOT ` + entitledExpr("$1") + `
			  RETURNING ` + userColumns
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}
