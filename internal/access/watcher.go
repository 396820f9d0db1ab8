package access

import (
	"context"
	"log"
	"sync"
)

// ChangeFunc is notified when a user's resolved scope differs from the previous resolution.
type ChangeFunc func(ctx context.Context, userID string, previous, current Scope) error

// Watcher remembers the last scope resolved per user and reports changes.
// The first resolution for a user is not a change.
type Watcher struct {
	mu        sync.Mutex
	last      map[string]Scope
	listeners []ChangeFunc
	logger    *log.Logger
}

// WatcherOption configures optional behaviour for the Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger overrides the logger used to report listener failures.
func WithWatcherLogger(logger *log.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher constructs a Watcher that calls listeners on every scope change.
func NewWatcher(listeners []ChangeFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		last:      make(map[string]Scope),
		listeners: listeners,
		logger:    log.New(log.Writer(), "[access] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Resolve resolves the scope for userID and, when it changed since the last
// call, runs every listener before returning. The first listener error is
// returned alongside the resolved scope, which stays valid either way.
func (w *Watcher) Resolve(ctx context.Context, userID string, p Permissions) (Scope, error) {
	current := ResolveScope(p)

	w.mu.Lock()
	previous, seen := w.last[userID]
	w.last[userID] = current
	w.mu.Unlock()

	if !seen || previous == current {
		return current, nil
	}

	w.logger.Printf("scope changed (user=%s, %s -> %s)", userID, previous, current)
	for _, listener := range w.listeners {
		if err := listener(ctx, userID, previous, current); err != nil {
			return current, err
		}
	}
	return current, nil
}

// Forget drops the remembered scope for userID, e.g. on sign-out.
func (w *Watcher) Forget(userID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.last, userID)
}
