// Package subscription реализует жизненный цикл платной подписки:
// оформление через шлюз, обработку событий webhook, отмену и историю платежей.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/rivve/boarding-house/internal/gateway"
	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/lib/clock"
	"github.com/rivve/boarding-house/internal/lib/metrics"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/models"
)

// Repository хранилище пользователей и платежей.
type Repository interface {
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
	GetActivePayment(ctx context.Context, userUID string, now time.Time) (*models.Payment, error)
	CreatePayment(ctx context.Context, p models.Payment) (int64, error)
	ListPaymentsByUser(ctx context.Context, userUID string) ([]*models.Payment, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	GetPaymentByExternalSubscriptionID(ctx context.Context, extID string) (*models.Payment, error)
	ActivatePayment(ctx context.Context, transactionID, extSubID string, now time.Time,
		outranks models.Outranks) (*models.ActivationResult, error)
	MarkPaymentFailed(ctx context.Context, transactionID string, now time.Time) (*models.Payment, bool, error)
	CancelPayment(ctx context.Context, id int64, reason models.CancelReason, now time.Time) (*models.Payment, bool, error)
	RecomputePremium(ctx context.Context, userUID string, now time.Time) (bool, bool, error)
}

// Gateway платежный шлюз.
type Gateway interface {
	CreateSession(ctx context.Context, req gateway.SessionRequest) (*gateway.Session, error)
	CancelSubscription(ctx context.Context, externalSubscriptionID string) error
}

// Notifier отправка писем пользователям.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Checkout результат оформления подписки.
type Checkout struct {
	PaymentID     int64  `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	RedirectURL   string `json:"redirect_url"`
}

// Service конечный автомат подписки.
type Service struct {
	repo          Repository
	gateway       Gateway
	notifier      Notifier
	policy        *Policy
	clock         clock.Clock
	webhookSecret string
	log           *slog.Logger
}

// NewService создает новый экземпляр Service.
func NewService(repo Repository, gw Gateway, notifier Notifier, policy *Policy,
	clk clock.Clock, webhookSecret string, log *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		gateway:       gw,
		notifier:      notifier,
		policy:        policy,
		clock:         clk,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// CreateCheckout оформляет подписку: проверяет право на тариф, создает сессию
// шлюза и только после этого сохраняет платеж в состоянии pending.
func (s *Service) CreateCheckout(ctx context.Context, userUID string, plan models.PlanType, duration models.PlanDuration) (*Checkout, error) {
	const op = "subscription.CreateCheckout"
	log := s.log.With(slog.String("op", op), slog.String("user_uid", userUID))

	checkout, err := s.createCheckout(ctx, log, userUID, plan, duration)
	if err != nil {
		metrics.Checkouts.WithLabelValues(resultLabel(err)).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.Checkouts.WithLabelValues("created").Inc()
	return checkout, nil
}

func (s *Service) createCheckout(ctx context.Context, log *slog.Logger, userUID string,
	plan models.PlanType, duration models.PlanDuration) (*Checkout, error) {
	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		return nil, err
	}
	if !user.IsEmailVerified {
		return nil, apperr.ErrEmailNotVerified
	}
	if !s.policy.Allowed(user.Role, plan) {
		return nil, apperr.ErrInvalidPlan
	}
	amount, err := s.policy.Price(plan, duration)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	active, err := s.repo.GetActivePayment(ctx, userUID, now)
	if err != nil {
		return nil, err
	}
	if active != nil {
		switch s.policy.Compare(active.PlanType, plan) {
		case Same:
			return nil, apperr.ErrAlreadySubscribed
		case Downgrade:
			return nil, apperr.ErrDowngradeBlocked
		}
		log.Info("upgrade requested", slog.String("from", string(active.PlanType)), slog.String("to", string(plan)))
	}

	session, err := s.gateway.CreateSession(ctx, gateway.SessionRequest{
		Amount:   amount,
		Currency: s.policy.Currency(),
		Metadata: map[string]string{
			"user_uid":      userUID,
			"plan_type":     string(plan),
			"plan_duration": string(duration),
		},
	})
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		return nil, apperr.ErrCheckoutSessionFailed
	}

	id, err := s.repo.CreatePayment(ctx, models.Payment{
		UserUID:       userUID,
		UserRole:      user.Role,
		PlanType:      plan,
		PlanDuration:  duration,
		Amount:        amount,
		Currency:      s.policy.Currency(),
		Status:        models.StatusPending,
		TransactionID: session.ID,
		CreatedAt:     now,
	})
	if err != nil {
		return nil, err
	}
	log.Info("checkout created", slog.Int64("payment_id", id), slog.String("transaction_id", session.ID))

	return &Checkout{
		PaymentID:     id,
		TransactionID: session.ID,
		RedirectURL:   session.RedirectURL,
	}, nil
}

// Cancel отменяет действующую подписку по запросу пользователя.
// Доступ сохраняется до окончания оплаченного периода.
func (s *Service) Cancel(ctx context.Context, userUID string) (*models.Payment, error) {
	const op = "subscription.Cancel"
	log := s.log.With(slog.String("op", op), slog.String("user_uid", userUID))

	now := s.clock.Now()
	active, err := s.repo.GetActivePayment(ctx, userUID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if active == nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNoActiveSubscription)
	}

	// без внешней подписки (разовый платеж) отменять на стороне шлюза нечего
	if active.ExternalSubscriptionID != "" {
		if err := s.gateway.CancelSubscription(ctx, active.ExternalSubscriptionID); err != nil {
			log.Error("gateway cancellation failed", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrCancellationFailed)
		}
	}

	cancelled, ok, err := s.repo.CancelPayment(ctx, active.ID, models.CancelByUser, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		// платеж успел истечь или быть вытесненным
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNoActiveSubscription)
	}
	log.Info("subscription cancelled by user", slog.Int64("payment_id", cancelled.ID))

	s.notify(ctx, log, userUID, models.TemplateSubscriptionCancelled, "Your RiVVE subscription was cancelled", cancelled)
	return cancelled, nil
}

// History возвращает все платежи пользователя, новые первыми.
func (s *Service) History(ctx context.Context, userUID string) ([]*models.Payment, error) {
	const op = "subscription.History"
	payments, err := s.repo.ListPaymentsByUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	return payments, nil
}

// notify отправляет письмо владельцу платежа. Ошибки только логируются.
func (s *Service) notify(ctx context.Context, log *slog.Logger, userUID, template, subject string, p *models.Payment) {
	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		log.Error("failed to load user for notification", sl.Err(err))
		return
	}
	data := map[string]any{
		"Username":      user.Username,
		"PlanType":      string(p.PlanType),
		"PlanDuration":  string(p.PlanDuration),
		"Amount":        formatAmount(p.Amount),
		"Currency":      p.Currency,
		"TransactionID": p.TransactionID,
	}
	if p.SubscriptionExpiry != nil {
		data["Expiry"] = p.SubscriptionExpiry.Format("2006-01-02")
	}
	err = s.notifier.Notify(ctx, models.Notification{
		Email:    user.Email,
		Subject:  subject,
		Template: template,
		Data:     data,
	})
	if err != nil {
		log.Error("failed to send notification", slog.String("template", template), sl.Err(err))
	}
}

// formatAmount форматирует сумму в минимальных единицах: 150000 -> "1500.00".
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	cents := minor % 100
	pad := ""
	if cents < 10 {
		pad = "0"
	}
	return sign + strconv.FormatInt(minor/100, 10) + "." + pad + strconv.FormatInt(cents, 10)
}

func resultLabel(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return "rejected"
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindUpstream:
		return "gateway_error"
	case apperr.KindNotFound:
		return "not_found"
	default:
		return "error"
	}
}
