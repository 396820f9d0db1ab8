package auth

import (
	"context"

	"example.com/attendance/internal/access"
	"example.com/attendance/internal/auth/bearer"
)

// Claims mirrors the bearer claims type for service convenience.
type Claims = bearer.Claims

// Config mirrors the bearer config.
type Config = bearer.Config

// ParseClaims delegates to the bearer parser.
func ParseClaims(token string, cfg Config) (*Claims, error) {
	return bearer.Parse(token, cfg)
}

// WithClaims stores the claims in the request context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return bearer.WithClaims(ctx, claims)
}

// FromContext retrieves claims from context.
func FromContext(ctx context.Context) (*Claims, bool) {
	return bearer.FromContext(ctx)
}

// PermissionsFromClaims derives the attendance permission snapshot carried by a token.
// Admins see everything.
func PermissionsFromClaims(claims *Claims) access.Permissions {
	if claims == nil {
		return access.Permissions{}
	}
	return access.Permissions{
		ViewAll: claims.HasScope(ScopeAttendanceReadAll) || claims.HasScope(ScopeAttendanceAdmin),
		ViewOwn: claims.HasScope(ScopeAttendanceReadOwn),
	}
}
