package models

// Шаблоны писем.
const (
	TemplateVerifyEmail           = "verify_email"
	TemplateSubscriptionActivated = "subscription_activated"
	TemplatePaymentFailed         = "payment_failed"
	TemplateSubscriptionCancelled = "subscription_cancelled"
	TemplateSubscriptionExpired   = "subscription_expired"
	TemplatePremiumEnded          = "premium_ended"
	TemplateSlotAvailable         = "slot_available"
)

// Notification письмо, передаваемое через очередь в сервис отправки.
type Notification struct {
	Email    string         `json:"email"`
	Subject  string         `json:"subject"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}
