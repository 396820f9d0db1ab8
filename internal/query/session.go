package query

import (
	"context"
	"sync"

	"example.com/attendance/internal/access"
)

// Session binds a Loader to one signed-in user. It remembers the scope last
// resolved for that user and invalidates the cache before serving a request
// under a different scope.
//
// It is meant for clients embedding the package for a single user. The HTTP
// API serves many users and tracks scope changes with access.Watcher instead.
type Session struct {
	loader *Loader
	userID string

	mu    sync.Mutex
	scope access.Scope
	open  bool
}

// NewSession starts a session for userID.
func NewSession(loader *Loader, userID string) *Session {
	return &Session{loader: loader, userID: userID, open: true}
}

// Load resolves the scope from perms and loads records for filter.
func (s *Session) Load(ctx context.Context, perms access.Permissions, filter Filter) (Result, error) {
	scope := access.ResolveScope(perms)

	s.mu.Lock()
	changed := s.scope != "" && s.scope != scope
	s.scope = scope
	s.mu.Unlock()

	if changed {
		if err := s.loader.Cache().InvalidateAll(ctx); err != nil {
			return Result{}, err
		}
	}
	return s.loader.Load(ctx, Request{UserID: s.userID, Scope: scope, Filter: filter})
}

// Close invalidates the cache on sign-out. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	s.scope = ""
	s.mu.Unlock()
	return s.loader.Cache().InvalidateAll(ctx)
}
