package auth

import (
	"net/http"
	"strings"

	"example.com/attendance/internal/auth/bearer"
)

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	inner bearer.Middleware
}

// NewMiddleware constructs Middleware with validation config. Health and
// metrics endpoints are let through unauthenticated.
func NewMiddleware(cfg Config) Middleware {
	skipper := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || strings.HasPrefix(r.URL.Path, "/metrics")
	}
	return Middleware{inner: bearer.NewMiddleware(cfg, skipper)}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}
