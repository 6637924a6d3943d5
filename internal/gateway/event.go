package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Типы событий шлюза.
const (
	TypeCheckoutCompleted     = "checkout.completed"
	TypePaymentSucceeded      = "payment.succeeded"
	TypePaymentFailed         = "payment.failed"
	TypeSubscriptionCancelled = "subscription.cancelled"
)

// ErrUnknownEvent тип события не обрабатывается.
var ErrUnknownEvent = errors.New("gateway: unknown event type")

// Event событие шлюза. Реализуется только типами этого пакета.
type Event interface {
	Type() string
	isEvent()
}

// CheckoutCompleted оплата сессии прошла успешно.
type CheckoutCompleted struct {
	EventID                string
	TransactionID          string
	ExternalSubscriptionID string
	Amount                 int64
	Currency               string
}

// PaymentFailed оплата не прошла.
type PaymentFailed struct {
	EventID       string
	TransactionID string
	Reason        string
}

// SubscriptionCancelled шлюз отменил подписку.
// Платеж ищется по TransactionID, а если он пуст, по ExternalSubscriptionID.
type SubscriptionCancelled struct {
	EventID                string
	TransactionID          string
	ExternalSubscriptionID string
}

func (CheckoutCompleted) Type() string     { return TypeCheckoutCompleted }
func (PaymentFailed) Type() string         { return TypePaymentFailed }
func (SubscriptionCancelled) Type() string { return TypeSubscriptionCancelled }

func (CheckoutCompleted) isEvent()     {}
func (PaymentFailed) isEvent()         {}
func (SubscriptionCancelled) isEvent() {}

type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		SessionID      string `json:"session_id"`
		SubscriptionID string `json:"subscription_id"`
		Amount         int64  `json:"amount"`
		Currency       string `json:"currency"`
		FailureReason  string `json:"failure_reason"`
	} `json:"data"`
}

// ParseEvent разбирает проверенное тело webhook в событие.
// Для необрабатываемых типов возвращает ErrUnknownEvent.
func ParseEvent(payload []byte) (Event, error) {
	const op = "gateway.ParseEvent"
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch env.Type {
	case TypeCheckoutCompleted, TypePaymentSucceeded:
		if env.Data.SessionID == "" {
			return nil, fmt.Errorf("%s: %s without session_id", op, env.Type)
		}
		return CheckoutCompleted{
			EventID:                env.ID,
			TransactionID:          env.Data.SessionID,
			ExternalSubscriptionID: env.Data.SubscriptionID,
			Amount:                 env.Data.Amount,
			Currency:               env.Data.Currency,
		}, nil
	case TypePaymentFailed:
		if env.Data.SessionID == "" {
			return nil, fmt.Errorf("%s: %s without session_id", op, env.Type)
		}
		return PaymentFailed{
			EventID:       env.ID,
			TransactionID: env.Data.SessionID,
			Reason:        env.Data.FailureReason,
		}, nil
	case TypeSubscriptionCancelled:
		if env.Data.SessionID == "" && env.Data.SubscriptionID == "" {
			return nil, fmt.Errorf("%s: %s without reference", op, env.Type)
		}
		return SubscriptionCancelled{
			EventID:                env.ID,
			TransactionID:          env.Data.SessionID,
			ExternalSubscriptionID: env.Data.SubscriptionID,
		}, nil
	default:
		return nil, fmt.Errorf("%s: %q: %w", op, env.Type, ErrUnknownEvent)
	}
}
