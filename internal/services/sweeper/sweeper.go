// Package sweeper периодически переводит истекшие подписки в expired,
// сверяет флаг премиума пользователей и закрывает брошенные checkout.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/rivve/boarding-house/internal/lib/clock"
	"github.com/rivve/boarding-house/internal/lib/metrics"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/models"
)

const batchSize = 500

// Repository операции хранилища, нужные для обхода.
type Repository interface {
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*models.Payment, error)
	ExpirePayment(ctx context.Context, id int64, now time.Time) (bool, error)
	RecomputePremium(ctx context.Context, userUID string, now time.Time) (bool, bool, error)
	DowngradeUnentitledUsers(ctx context.Context, now time.Time) ([]*models.User, error)
	FailAbandonedPending(ctx context.Context, createdBefore, now time.Time) (int64, error)
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
}

// Notifier отправка писем пользователям.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// SweepReport итоги одного прохода.
type SweepReport struct {
	Expired    int
	Downgraded int
	Abandoned  int64
	Errors     int
}

type SweeperService struct {
	repo       Repository
	notifier   Notifier
	clock      clock.Clock
	pendingTTL time.Duration
	log        *slog.Logger
}

// NewSweeperService создает новый экземпляр SweeperService.
func NewSweeperService(repo Repository, notifier Notifier, clk clock.Clock, pendingTTL time.Duration, log *slog.Logger) *SweeperService {
	return &SweeperService{
		repo:       repo,
		notifier:   notifier,
		clock:      clk,
		pendingTTL: pendingTTL,
		log:        log,
	}
}

// Run выполняет проход сразу и затем с заданным интервалом до отмены ctx.
func (s *SweeperService) Run(ctx context.Context, interval time.Duration) {
	s.runSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *SweeperService) runSweep(ctx context.Context) {
	s.log.Info("starting expiry sweep")
	report := s.Sweep(ctx)
	s.log.Info("expiry sweep finished",
		slog.Int("expired", report.Expired),
		slog.Int("downgraded", report.Downgraded),
		slog.Int64("abandoned", report.Abandoned),
		slog.Int("errors", report.Errors))
}

// Sweep выполняет один проход. Ошибка по одной записи не прерывает обход.
func (s *SweeperService) Sweep(ctx context.Context) SweepReport {
	var report SweepReport
	now := s.clock.Now()

	s.expire(ctx, now, &report)
	s.reconcile(ctx, now, &report)
	s.reap(ctx, now, &report)

	return report
}

func (s *SweeperService) expire(ctx context.Context, now time.Time, report *SweepReport) {
	log := s.log.With(slog.String("op", "sweeper.expire"))

	for {
		payments, err := s.repo.ListExpiredActive(ctx, now, batchSize)
		if err != nil {
			log.Error("failed to list expired payments", sl.Err(err))
			report.Errors++
			return
		}
		if len(payments) == 0 {
			return
		}

		progressed := 0
		for _, p := range payments {
			if ctx.Err() != nil {
				return
			}
			// условный переход: только строки, все еще success с истекшим сроком
			ok, err := s.repo.ExpirePayment(ctx, p.ID, now)
			if err != nil {
				log.Error("failed to expire payment", slog.Int64("payment_id", p.ID), sl.Err(err))
				report.Errors++
				continue
			}
			if !ok {
				continue
			}
			progressed++
			report.Expired++
			metrics.SweeperExpired.Inc()

			premium, changed, err := s.repo.RecomputePremium(ctx, p.UserUID, now)
			if err != nil {
				log.Error("failed to recompute premium", slog.String("user_uid", p.UserUID), sl.Err(err))
				report.Errors++
			}
			if changed && !premium {
				report.Downgraded++
			}
			s.notify(ctx, log, p.UserUID, models.TemplateSubscriptionExpired, "Your RiVVE subscription has expired", map[string]any{
				"PlanType": string(p.PlanType),
				"Expiry":   p.SubscriptionExpiry.Format("2006-01-02"),
			})
		}

		if len(payments) < batchSize || progressed == 0 {
			return
		}
	}
}

// reconcile снимает премиум у пользователей без действующих платежей,
// например после окончания льготного периода отмененной подписки.
func (s *SweeperService) reconcile(ctx context.Context, now time.Time, report *SweepReport) {
	log := s.log.With(slog.String("op", "sweeper.reconcile"))

	users, err := s.repo.DowngradeUnentitledUsers(ctx, now)
	if err != nil {
		log.Error("failed to downgrade users", sl.Err(err))
		report.Errors++
		return
	}
	for _, u := range users {
		report.Downgraded++
		log.Info("premium ended", slog.String("user_uid", u.UUID))
		s.send(ctx, log, u, models.TemplatePremiumEnded, "Your RiVVE premium access has ended", map[string]any{})
	}
}

func (s *SweeperService) reap(ctx context.Context, now time.Time, report *SweepReport) {
	if s.pendingTTL <= 0 {
		return
	}
	n, err := s.repo.FailAbandonedPending(ctx, now.Add(-s.pendingTTL), now)
	if err != nil {
		s.log.Error("failed to reap abandoned checkouts", slog.String("op", "sweeper.reap"), sl.Err(err))
		report.Errors++
		return
	}
	report.Abandoned = n
	metrics.SweeperAbandoned.Add(float64(n))
}

func (s *SweeperService) notify(ctx context.Context, log *slog.Logger, userUID, template, subject string, data map[string]any) {
	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		log.Error("failed to load user for notification", slog.String("user_uid", userUID), sl.Err(err))
		return
	}
	s.send(ctx, log, user, template, subject, data)
}

func (s *SweeperService) send(ctx context.Context, log *slog.Logger, user *models.User, template, subject string, data map[string]any) {
	data["Username"] = user.Username
	err := s.notifier.Notify(ctx, models.Notification{
		Email:    user.Email,
		Subject:  subject,
		Template: template,
		Data:     data,
	})
	if err != nil {
		log.Error("failed to send notification", slog.String("template", template), sl.Err(err))
	}
}
