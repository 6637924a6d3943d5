package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rivve/boarding-house/internal/gateway"
	"github.com/rivve/boarding-house/internal/lib/apperr"
	"github.com/rivve/boarding-house/internal/lib/metrics"
	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/models"
)

// Outcome результат обработки события шлюза.
type Outcome string

const (
	// OutcomeApplied событие изменило состояние платежа
	OutcomeApplied Outcome = "applied"
	// OutcomeReplayed событие уже было применено ранее
	OutcomeReplayed Outcome = "replayed"
	// OutcomeIgnored тип события не обрабатывается
	OutcomeIgnored Outcome = "ignored"
	// OutcomeRejected оплата получена, но не применена: действует более высокий тариф
	OutcomeRejected Outcome = "rejected"
	// OutcomeUnreconciled оплата пришла для платежа, который уже закрыт как failed
	OutcomeUnreconciled Outcome = "unreconciled"
)

var errMalformedEvent = apperr.New(apperr.KindValidation, "malformed event payload")

// HandleWebhook проверяет подпись тела и применяет событие.
// Без валидной подписи тело не разбирается.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	const op = "subscription.HandleWebhook"

	if err := gateway.VerifySignature(payload, signature, s.webhookSecret); err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		return "", fmt.Errorf("%s: %w", op, apperr.ErrInvalidSignature)
	}

	ev, err := gateway.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, gateway.ErrUnknownEvent) {
			s.log.Info("ignoring unsupported gateway event", slog.String("op", op), sl.Err(err))
			metrics.WebhookEvents.WithLabelValues("unknown", string(OutcomeIgnored)).Inc()
			return OutcomeIgnored, nil
		}
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		return "", fmt.Errorf("%s: %w: %v", op, errMalformedEvent, err)
	}

	outcome, err := s.HandleEvent(ctx, ev)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(ev.Type(), "error").Inc()
		return "", fmt.Errorf("%s: %w", op, err)
	}
	metrics.WebhookEvents.WithLabelValues(ev.Type(), string(outcome)).Inc()
	return outcome, nil
}

// HandleEvent применяет проверенное событие шлюза к платежу.
// Повторная доставка события не вызывает побочных эффектов.
func (s *Service) HandleEvent(ctx context.Context, ev gateway.Event) (Outcome, error) {
	switch e := ev.(type) {
	case gateway.CheckoutCompleted:
		return s.checkoutCompleted(ctx, e)
	case gateway.PaymentFailed:
		return s.paymentFailed(ctx, e)
	case gateway.SubscriptionCancelled:
		return s.subscriptionCancelled(ctx, e)
	default:
		return OutcomeIgnored, nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, e gateway.CheckoutCompleted) (Outcome, error) {
	const op = "subscription.checkoutCompleted"
	log := s.log.With(slog.String("op", op), slog.String("transaction_id", e.TransactionID), slog.String("event_id", e.EventID))

	res, err := s.repo.ActivatePayment(ctx, e.TransactionID, e.ExternalSubscriptionID, s.clock.Now(), s.policy.Outranks)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	p := res.Payment
	if res.BlockedBy != nil {
		log.Warn("paid checkout rejected, higher plan is active, refund required",
			slog.Int64("payment_id", p.ID),
			slog.String("user_uid", p.UserUID),
			slog.String("plan_type", string(p.PlanType)),
			slog.Int64("active_payment_id", res.BlockedBy.ID),
			slog.String("active_plan_type", string(res.BlockedBy.PlanType)),
			sl.Security(),
		)
		return OutcomeRejected, nil
	}
	if !res.Applied {
		if p.Status == models.StatusFailed {
			log.Warn("completed checkout for closed payment, reconciliation required",
				slog.Int64("payment_id", p.ID),
				slog.String("user_uid", p.UserUID),
				slog.String("cancel_reason", string(p.CancelReason)),
				sl.Security(),
			)
			return OutcomeUnreconciled, nil
		}
		log.Info("checkout event replayed", slog.String("status", string(p.Status)))
		return OutcomeReplayed, nil
	}
	if e.Amount > 0 && (e.Amount != p.Amount || (e.Currency != "" && e.Currency != p.Currency)) {
		log.Warn("gateway amount differs from payment",
			slog.Int64("expected", p.Amount), slog.Int64("received", e.Amount), sl.Security())
	}
	for _, old := range res.Superseded {
		log.Info("payment superseded", slog.Int64("payment_id", old.ID), slog.String("status", string(old.Status)))
	}
	log.Info("subscription activated", slog.Int64("payment_id", p.ID), slog.String("user_uid", p.UserUID))

	s.notify(ctx, log, p.UserUID, models.TemplateSubscriptionActivated, "Your RiVVE premium subscription is active", p)
	return OutcomeApplied, nil
}

func (s *Service) paymentFailed(ctx context.Context, e gateway.PaymentFailed) (Outcome, error) {
	const op = "subscription.paymentFailed"
	log := s.log.With(slog.String("op", op), slog.String("transaction_id", e.TransactionID), slog.String("event_id", e.EventID))

	p, applied, err := s.repo.MarkPaymentFailed(ctx, e.TransactionID, s.clock.Now())
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		log.Info("payment failed event replayed", slog.String("status", string(p.Status)))
		return OutcomeReplayed, nil
	}
	log.Info("payment failed", slog.Int64("payment_id", p.ID), slog.String("reason", e.Reason))

	s.notify(ctx, log, p.UserUID, models.TemplatePaymentFailed, "Your RiVVE payment did not go through", p)
	return OutcomeApplied, nil
}

func (s *Service) subscriptionCancelled(ctx context.Context, e gateway.SubscriptionCancelled) (Outcome, error) {
	const op = "subscription.subscriptionCancelled"
	log := s.log.With(slog.String("op", op), slog.String("transaction_id", e.TransactionID),
		slog.String("subscription_id", e.ExternalSubscriptionID), slog.String("event_id", e.EventID))

	var (
		p   *models.Payment
		err error
	)
	if e.TransactionID != "" {
		p, err = s.repo.GetPaymentByTransactionID(ctx, e.TransactionID)
	} else {
		p, err = s.repo.GetPaymentByExternalSubscriptionID(ctx, e.ExternalSubscriptionID)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	now := s.clock.Now()
	if p.Status != models.StatusSuccess {
		log.Info("cancellation event for inactive payment", slog.String("status", string(p.Status)))
		if p.Status == models.StatusCancelled && p.CancelReason == models.CancelByGateway {
			// повтор после сбоя пересчета: пересчет идемпотентен
			if _, _, err := s.repo.RecomputePremium(ctx, p.UserUID, now); err != nil {
				return "", fmt.Errorf("%s: %w", op, err)
			}
		}
		return OutcomeReplayed, nil
	}

	cancelled, ok, err := s.repo.CancelPayment(ctx, p.ID, models.CancelByGateway, now)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		log.Info("payment changed state concurrently, cancellation skipped")
		return OutcomeReplayed, nil
	}

	premium, _, err := s.repo.RecomputePremium(ctx, p.UserUID, now)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	log.Info("subscription cancelled by gateway", slog.Int64("payment_id", p.ID), slog.Bool("is_premium", premium))

	s.notify(ctx, log, p.UserUID, models.TemplateSubscriptionCancelled, "Your RiVVE subscription was cancelled", cancelled)
	return OutcomeApplied, nil
}
