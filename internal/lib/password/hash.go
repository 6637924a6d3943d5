// Package password хеширует и проверяет пароли пользователей через bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxLength предел bcrypt на длину пароля в байтах.
const MaxLength = 72

// ErrTooLong пароль длиннее MaxLength.
var ErrTooLong = errors.New("password exceeds 72 bytes")

// GetHash возвращает bcrypt-хэш пароля.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"
	if len(password) > MaxLength {
		return "", fmt.Errorf("%s: %w", op, ErrTooLong)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// CompareHash сравнивает bcrypt-хэш с введённым паролем.
// Возвращает nil при совпадении.
func CompareHash(originalHash, externalPassword string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(externalPassword)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
