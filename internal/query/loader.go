// Package query loads scoped attendance records through the query cache.
package query

import (
	"context"
	"log"

	"example.com/attendance/internal/access"
	"example.com/attendance/internal/cache"
	"example.com/attendance/internal/domain"
)

// RemoteQuery restricts a remote fetch. An empty OwnerID means every owner.
type RemoteQuery struct {
	OwnerID string
	Start   domain.Date
	End     domain.Date
	Limit   int
}

// RemoteStore is the authoritative record source. Results are ordered by date, newest first.
type RemoteStore interface {
	Query(ctx context.Context, q RemoteQuery) ([]domain.AttendanceRecord, error)
}

// Request describes one listing call.
type Request struct {
	UserID string
	Scope  access.Scope
	Filter Filter
}

// Result carries the records and where they came from.
type Result struct {
	Records   []domain.AttendanceRecord
	Scope     access.Scope
	FromCache bool
}

// LoaderOption configures optional behaviour for the Loader.
type LoaderOption func(*Loader)

// WithLogger overrides the loader logger.
func WithLogger(logger *log.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// Loader resolves a scoped request against the cache, falling back to the
// remote store on a miss and feeding the fetched records back.
type Loader struct {
	store  RemoteStore
	cache  *cache.QueryCache
	logger *log.Logger
}

// NewLoader constructs a Loader.
func NewLoader(store RemoteStore, c *cache.QueryCache, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:  store,
		cache:  c,
		logger: log.New(log.Writer(), "[query] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Cache exposes the underlying query cache.
func (l *Loader) Cache() *cache.QueryCache { return l.cache }

// Load returns the records visible under req.Scope. The NONE scope yields an
// empty result without touching the cache or the store. Remote failures are
// returned as-is and nothing is cached for them.
func (l *Loader) Load(ctx context.Context, req Request) (Result, error) {
	if req.Scope == access.ScopeNone {
		return Result{Records: []domain.AttendanceRecord{}, Scope: req.Scope}, nil
	}

	key := cache.Key{
		Filter: req.Filter.Kind,
		Start:  req.Filter.Start,
		End:    req.Filter.End,
		UserID: req.UserID,
		Scope:  req.Scope,
	}
	if entry, ok := l.cache.Get(ctx, key); ok {
		return Result{Records: entry.Payload, Scope: req.Scope, FromCache: true}, nil
	}

	records, err := l.store.Query(ctx, RemoteQuery{
		OwnerID: req.Scope.OwnerFilter(req.UserID),
		Start:   req.Filter.Start,
		End:     req.Filter.End,
		Limit:   req.Scope.Limit(),
	})
	if err != nil {
		return Result{}, err
	}
	if records == nil {
		records = []domain.AttendanceRecord{}
	}

	l.cache.Put(ctx, key, records)
	return Result{Records: records, Scope: req.Scope}, nil
}
