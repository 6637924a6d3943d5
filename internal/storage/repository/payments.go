package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/lib/period"
	"github.com/rivve/boarding-house/internal/models"
)

const paymentColumns = `id, user_uid, user_role, plan_type, plan_duration, amount, currency, status,
	transaction_id, external_subscription_id, bought_date, subscription_expiry, cancel_reason,
	cancelled_at, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p                           models.Payment
		extID, cancelReason         sql.NullString
		bought, expiry, cancelledAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserUID, &p.UserRole, &p.PlanType, &p.PlanDuration, &p.Amount, &p.Currency,
		&p.Status, &p.TransactionID, &extID, &bought, &expiry, &cancelReason, &cancelledAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ExternalSubscriptionID = extID.String
	p.CancelReason = models.CancelReason(cancelReason.String)
	p.BoughtDate = timePtr(bought)
	p.SubscriptionExpiry = timePtr(expiry)
	p.CancelledAt = timePtr(cancelledAt)
	return &p, nil
}

func collectPayments(rows *sql.Rows) ([]*models.Payment, error) {
	defer func() { _ = rows.Close() }()
	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

// CreatePayment сохраняет платеж в состоянии pending и возвращает его ID.
func (s *Storage) CreatePayment(ctx context.Context, p models.Payment) (int64, error) {
	const op = "storage.CreatePayment"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `INSERT INTO payments (user_uid, user_role, plan_type, plan_duration, amount, currency,
			      status, transaction_id, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, $8)
			  RETURNING id`
	var id int64
	err := s.DB.QueryRowContext(ctx, query,
		p.UserUID, p.UserRole, p.PlanType, p.PlanDuration, p.Amount, p.Currency, p.TransactionID, p.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// GetPaymentByTransactionID возвращает платеж по идентификатору сессии шлюза.
func (s *Storage) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	const op = "storage.GetPaymentByTransactionID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPayment(s.DB.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetPaymentByExternalSubscriptionID возвращает последний платеж по идентификатору подписки шлюза.
func (s *Storage) GetPaymentByExternalSubscriptionID(ctx context.Context, extID string) (*models.Payment, error) {
	const op = "storage.GetPaymentByExternalSubscriptionID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPayment(s.DB.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE external_subscription_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`, extID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetActivePayment возвращает действующую подписку пользователя или nil, если ее нет.
func (s *Storage) GetActivePayment(ctx context.Context, userUID string, now time.Time) (*models.Payment, error) {
	const op = "storage.GetActivePayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPayment(s.DB.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE user_uid = $1 AND status = 'success' AND subscription_expiry > $2`, userUID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ListPaymentsByUser возвращает историю платежей пользователя, новые первыми.
func (s *Storage) ListPaymentsByUser(ctx context.Context, userUID string) ([]*models.Payment, error) {
	const op = "storage.ListPaymentsByUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_uid = $1
		 ORDER BY created_at DESC, id DESC`, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payments, nil
}

// ActivatePayment переводит платеж pending -> success.
//
// В одной транзакции под блокировкой строки пользователя: вычисляет срок
// (продление того же тарифа считается от текущей даты окончания), вытесняет
// прочие успешные платежи пользователя и выставляет is_premium.
// Если действует подписка тарифа выше (по outranks), платеж переводится в failed
// с причиной downgrade_blocked, а BlockedBy указывает на действующий платеж.
// Повторный вызов для уже обработанного платежа возвращает Applied=false.
func (s *Storage) ActivatePayment(ctx context.Context, transactionID, extSubID string, now time.Time,
	outranks models.Outranks) (*models.ActivationResult, error) {
	const op = "storage.ActivatePayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	res := &models.ActivationResult{}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := scanPayment(tx.QueryRowContext(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1 FOR UPDATE`, transactionID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrPaymentNotFound
			}
			return err
		}
		res.Payment = p
		if p.Status != models.StatusPending {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM users WHERE uid = $1 FOR UPDATE`, p.UserUID); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT `+paymentColumns+` FROM payments
			 WHERE user_uid = $1 AND status = 'success' AND id <> $2`, p.UserUID, p.ID)
		if err != nil {
			return err
		}
		current, err := collectPayments(rows)
		if err != nil {
			return err
		}

		if outranks != nil {
			for _, c := range current {
				if c.Active(now) && outranks(c.PlanType, p.PlanType) {
					rejected, err := scanPayment(tx.QueryRowContext(ctx,
						`UPDATE payments SET status = 'failed', cancel_reason = 'downgrade_blocked',
						     external_subscription_id = $2, updated_at = $3
						 WHERE id = $1 AND status = 'pending'
						 RETURNING `+paymentColumns, p.ID, nullString(extSubID), now))
					if err != nil {
						return err
					}
					res.Payment = rejected
					res.BlockedBy = c
					return nil
				}
			}
		}

		var renewFrom *time.Time
		for _, c := range current {
			if c.Active(now) && c.PlanType == p.PlanType {
				renewFrom = c.SubscriptionExpiry
			}
		}
		expiry, err := period.Expiry(now, renewFrom, p.PlanDuration)
		if err != nil {
			return err
		}

		for _, c := range current {
			var row *sql.Row
			if c.Active(now) {
				row = tx.QueryRowContext(ctx,
					`UPDATE payments SET status = 'cancelled', cancel_reason = 'superseded',
					     cancelled_at = $2, updated_at = $2
					 WHERE id = $1 AND status = 'success'
					 RETURNING `+paymentColumns, c.ID, now)
			} else {
				row = tx.QueryRowContext(ctx,
					`UPDATE payments SET status = 'expired', updated_at = $2
					 WHERE id = $1 AND status = 'success'
					 RETURNING `+paymentColumns, c.ID, now)
			}
			updated, err := scanPayment(row)
			if err != nil {
				return err
			}
			res.Superseded = append(res.Superseded, updated)
		}

		activated, err := scanPayment(tx.QueryRowContext(ctx,
			`UPDATE payments SET status = 'success', external_subscription_id = $2,
			     bought_date = $3, subscription_expiry = $4, updated_at = $3
			 WHERE id = $1 AND status = 'pending'
			 RETURNING `+paymentColumns, p.ID, nullString(extSubID), now, expiry))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET is_premium = TRUE WHERE uid = $1`, p.UserUID); err != nil {
			return err
		}
		res.Payment = activated
		res.Applied = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// MarkPaymentFailed переводит платеж pending -> failed.
// Возвращает платеж и признак того, что переход выполнен этим вызовом.
func (s *Storage) MarkPaymentFailed(ctx context.Context, transactionID string, now time.Time) (*models.Payment, bool, error) {
	const op = "storage.MarkPaymentFailed"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}

	p, err := scanPayment(s.DB.QueryRowContext(ctx,
		`UPDATE payments SET status = 'failed', updated_at = $2
		 WHERE transaction_id = $1 AND status = 'pending'
		 RETURNING `+paymentColumns, transactionID, now))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	existing, err := s.GetPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return existing, false, nil
}

// CancelPayment переводит платеж success -> cancelled с указанной причиной.
// Возвращает false, если платеж уже не был в состоянии success.
func (s *Storage) CancelPayment(ctx context.Context, id int64, reason models.CancelReason, now time.Time) (*models.Payment, bool, error) {
	const op = "storage.CancelPayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}

	p, err := scanPayment(s.DB.QueryRowContext(ctx,
		`UPDATE payments SET status = 'cancelled', cancel_reason = $2, cancelled_at = $3, updated_at = $3
		 WHERE id = $1 AND status = 'success'
		 RETURNING `+paymentColumns, id, reason, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return p, true, nil
}

// ExpirePayment переводит платеж success -> expired, если срок уже истек.
func (s *Storage) ExpirePayment(ctx context.Context, id int64, now time.Time) (bool, error) {
	const op = "storage.ExpirePayment"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE payments SET status = 'expired', updated_at = $2
		 WHERE id = $1 AND status = 'success' AND subscription_expiry <= $2`, id, now)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// ListExpiredActive возвращает успешные платежи с истекшим сроком.
func (s *Storage) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error) {
	const op = "storage.ListExpiredActive"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = 'success' AND subscription_expiry <= $1
		 ORDER BY subscription_expiry
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payments, nil
}

// FailAbandonedPending переводит в failed платежи, оставшиеся pending дольше срока.
func (s *Storage) FailAbandonedPending(ctx context.Context, createdBefore, now time.Time) (int64, error) {
	const op = "storage.FailAbandonedPending"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE payments SET status = 'failed', updated_at = $2
		 WHERE status = 'pending' AND created_at < $1`, createdBefore, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
