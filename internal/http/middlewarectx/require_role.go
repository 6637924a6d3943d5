package middlewarectx

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/render"

	"github.com/rivve/boarding-house/internal/http/response"
)

// RequireRole пропускает запрос только для перечисленных ролей.
// Должен стоять после JWTMiddleware.
func RequireRole(log *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := r.Context().Value(Role).(string)
			if !slices.Contains(roles, role) {
				log.Warn("access denied for role", slog.String("role", role), slog.String("path", r.URL.Path))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
