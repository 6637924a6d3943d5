// Package middlewarectx содержит HTTP middleware: проверку JWT токена,
// ограничение доступа по роли и ограничение частоты запросов.
//
// JWTMiddleware проверяет токен в заголовке Authorization и в случае успеха
// добавляет в контекст UID и роль пользователя для дальнейшего использования в обработчиках.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/rivve/boarding-house/internal/http/response"
	"github.com/rivve/boarding-house/internal/lib/jwt"
	"github.com/rivve/boarding-house/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserUID ключ для UID пользователя в контексте
	UserUID Key = "user_uid"
	// Role ключ для роли пользователя в контексте
	Role Key = "role"
)

// TokenParser разбирает и проверяет JWT токен.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.CustomClaims, error)
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке Authorization.
// При невалидном токене возвращает 401 Unauthorized.
func JWTMiddleware(parser TokenParser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("missing or invalid authorization header")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}

			claims, err := parser.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				log.Warn("invalid or expired token", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), UserUID, claims.UserUID)
			ctx = context.WithValue(ctx, Role, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserUIDFrom возвращает UID пользователя из контекста запроса.
func UserUIDFrom(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(UserUID).(string)
	return uid, ok && uid != ""
}
