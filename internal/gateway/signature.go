package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SignatureHeader заголовок с подписью тела webhook.
const SignatureHeader = "X-Gateway-Signature"

// ErrInvalidSignature подпись отсутствует или не совпадает.
var ErrInvalidSignature = errors.New("gateway: invalid signature")

// Sign возвращает base64(HMAC-SHA256(payload, secret)).
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature проверяет подпись тела запроса за постоянное время.
func VerifySignature(payload []byte, signature, secret string) error {
	if signature == "" || secret == "" {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(Sign(payload, secret)), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
