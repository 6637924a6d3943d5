package middlewarectx_test

import (
	"context"
	"net/http"

	"github.com/rivve/boarding-house/internal/http/middlewarectx"
)

func contextWithRole(r *http.Request, role string) context.Context {
	return context.WithValue(r.Context(), middlewarectx.Role, role)
}
