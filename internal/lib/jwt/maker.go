// Package jwt выпускает и проверяет токены доступа площадки.
package jwt

import (
	"errors"
	"time"
)

const (
	// Issuer издатель токенов доступа.
	Issuer = "rivve-boardinghouse"
	// Audience получатель токенов доступа.
	Audience = "rivve-api"
)

// ErrInvalidToken токен не прошел проверку.
var ErrInvalidToken = errors.New("invalid token")

// Maker описывает генерацию и разбор JWT токенов.
type Maker interface {
	GenerateToken(userUID, username, role string) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl подписывает токены HS256 общим секретом.
type MakerImpl struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт новый MakerImpl.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		now:       time.Now,
	}
}
