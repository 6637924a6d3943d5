// Package models содержит доменные модели маркетплейса: пользователей,
// платежи и подписки, объявления, отзывы и уведомления.
package models

import "time"

// Role роль пользователя на площадке.
type Role string

const (
	// RoleStudent арендатор, ищущий жилье
	RoleStudent Role = "student"
	// RoleLandlord владелец, размещающий объявления
	RoleLandlord Role = "landlord"
)

// Valid проверяет, что роль известна.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleLandlord
}

// User представляет зарегистрированного пользователя.
type User struct {
	UUID            string    `json:"uid"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Phone           string    `json:"phone,omitempty"`
	PasswordHash    string    `json:"-"`
	Role            Role      `json:"role"`
	IsPremium       bool      `json:"is_premium"` // кэшированная проекция действующих платежей
	IsEmailVerified bool      `json:"is_email_verified"`
	IsPhoneVerified bool      `json:"is_phone_verified"`
	CreatedAt       time.Time `json:"created_at"`

	VerificationToken        string     `json:"-"`
	VerificationTokenExpires *time.Time `json:"-"`
}

// ProfileUpdate изменяемые поля профиля. nil означает "не менять".
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// Empty нет ни одного поля для изменения.
func (u ProfileUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Phone == nil
}
