package models

import "time"

// PlanType тариф подписки.
type PlanType string

const (
	PlanGold     PlanType = "gold"
	PlanPlatinum PlanType = "platinum"
)

// PlanDuration срок подписки.
type PlanDuration string

const (
	DurationMonthly PlanDuration = "monthly"
	DurationYearly  PlanDuration = "yearly"
)

// PaymentStatus состояние платежа.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSuccess   PaymentStatus = "success"
	StatusFailed    PaymentStatus = "failed"
	StatusExpired   PaymentStatus = "expired"
	StatusCancelled PaymentStatus = "cancelled"
)

// CancelReason причина отмены успешного платежа.
type CancelReason string

const (
	// CancelByUser отмена пользователем, доступ сохраняется до конца периода
	CancelByUser CancelReason = "user"
	// CancelByGateway отмена со стороны шлюза, доступ отзывается сразу
	CancelByGateway CancelReason = "gateway"
	// CancelSuperseded платеж вытеснен апгрейдом
	CancelSuperseded CancelReason = "superseded"
	// CancelDowngradeBlocked оплата отклонена: у пользователя действует более высокий тариф.
	// Ставится на failed-платеж, деньги подлежат возврату.
	CancelDowngradeBlocked CancelReason = "downgrade_blocked"
)

// Outranks возвращает true, если тариф active выше тарифа incoming.
type Outranks func(active, incoming PlanType) bool

type transition struct {
	from PaymentStatus
	to   PaymentStatus
}

var validTransitions = map[transition]bool{
	{StatusPending, StatusSuccess}:   true,
	{StatusPending, StatusFailed}:    true,
	{StatusSuccess, StatusExpired}:   true,
	{StatusSuccess, StatusCancelled}: true,
}

// CanTransition проверяет, допустим ли переход между состояниями платежа.
func CanTransition(from, to PaymentStatus) bool {
	return validTransitions[transition{from, to}]
}

// Terminal возвращает true для конечных состояний.
func (s PaymentStatus) Terminal() bool {
	return s == StatusFailed || s == StatusExpired || s == StatusCancelled
}

// Payment одна попытка покупки подписки.
type Payment struct {
	ID                     int64         `json:"id"`
	UserUID                string        `json:"user_uid"`
	UserRole               Role          `json:"user_role"`
	PlanType               PlanType      `json:"plan_type"`
	PlanDuration           PlanDuration  `json:"plan_duration"`
	Amount                 int64         `json:"amount"`
	Currency               string        `json:"currency"`
	Status                 PaymentStatus `json:"status"`
	TransactionID          string        `json:"transaction_id"`
	ExternalSubscriptionID string        `json:"-"`
	BoughtDate             *time.Time    `json:"bought_date,omitempty"`
	SubscriptionExpiry     *time.Time    `json:"subscription_expiry,omitempty"`
	CancelReason           CancelReason  `json:"cancel_reason,omitempty"`
	CancelledAt            *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// Active действующая подписка: успешный платеж с неистекшим сроком.
func (p *Payment) Active(now time.Time) bool {
	return p.Status == StatusSuccess && p.SubscriptionExpiry != nil && p.SubscriptionExpiry.After(now)
}

// Entitles дает ли платеж премиум-доступ на момент now.
// Отмененная пользователем подписка действует до конца оплаченного периода.
func (p *Payment) Entitles(now time.Time) bool {
	if p.SubscriptionExpiry == nil || !p.SubscriptionExpiry.After(now) {
		return false
	}
	return p.Status == StatusSuccess ||
		(p.Status == StatusCancelled && p.CancelReason == CancelByUser)
}

// ActivationResult итог применения успешной оплаты.
type ActivationResult struct {
	Payment *Payment
	// Applied false, если платеж уже не был в состоянии pending (повтор вебхука)
	Applied bool
	// Superseded платежи, вытесненные новой подпиской
	Superseded []*Payment
	// BlockedBy действующий платеж более высокого тарифа, из-за которого оплата отклонена
	BlockedBy *Payment
}
