// Package apperr описывает доменные ошибки и их классификацию.
//
// Сервисы возвращают сигнальные ошибки, обернутые через fmt.Errorf("%s: %w"),
// HTTP-слой определяет по Kind статус ответа.
package apperr

import "errors"

// Kind класс ошибки.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindUpstream
	KindSignature
	KindInvalidOperation
)

// Error доменная ошибка с классом.
type Error struct {
	kind Kind
	msg  string
}

// New создает доменную ошибку.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind возвращает класс ошибки.
func (e *Error) Kind() Kind { return e.kind }

var (
	ErrUserNotFound          = New(KindNotFound, "user not found")
	ErrPaymentNotFound       = New(KindNotFound, "payment not found")
	ErrListingNotFound       = New(KindNotFound, "listing not found")
	ErrEmailNotVerified      = New(KindValidation, "email is not verified")
	ErrInvalidPlan           = New(KindValidation, "plan is not available for this account")
	ErrAlreadySubscribed     = New(KindConflict, "already subscribed to this plan")
	ErrDowngradeBlocked      = New(KindConflict, "downgrade is blocked until the current subscription expires")
	ErrCheckoutSessionFailed = New(KindUpstream, "failed to create checkout session")
	ErrNoActiveSubscription  = New(KindNotFound, "no active subscription")
	ErrCancellationFailed    = New(KindUpstream, "failed to cancel subscription")
	ErrInvalidSignature      = New(KindSignature, "invalid webhook signature")
	ErrInvalidOperation      = New(KindInvalidOperation, "invalid operation")
	ErrForbidden             = New(KindForbidden, "forbidden")
	ErrInvalidCredentials    = New(KindUnauthorized, "invalid credentials")
	ErrEmailTaken            = New(KindConflict, "email or username already registered")
	ErrInvalidToken          = New(KindValidation, "invalid or expired verification token")
	ErrUpstream              = New(KindUpstream, "upstream service failed")
	ErrAlreadyReviewed       = New(KindConflict, "listing already reviewed by this user")
)

// KindOf возвращает класс первой доменной ошибки в цепочке.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// Message возвращает текст доменной ошибки, пригодный для клиента.
// Для внутренних ошибок возвращается "internal error".
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return "internal error"
}
