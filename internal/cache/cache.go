// Package cache stores scoped attendance query results with a freshness window.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"example.com/attendance/internal/domain"
)

// DefaultTTL is how long a stored result set stays usable.
const DefaultTTL = time.Hour

// Entry is the value persisted per key. Entries are replaced whole, never merged.
type Entry struct {
	Key      string                    `json:"key"`
	Payload  []domain.AttendanceRecord `json:"payload"`
	StoredAt time.Time                 `json:"stored_at"`
}

// Option configures optional behaviour for the QueryCache.
type Option func(*QueryCache)

// WithClock overrides the clock used to stamp and age entries.
func WithClock(clock clockwork.Clock) Option {
	return func(c *QueryCache) {
		c.clock = clock
	}
}

// WithLogger overrides the logger used for non-fatal cache failures.
func WithLogger(logger *log.Logger) Option {
	return func(c *QueryCache) {
		c.logger = logger
	}
}

// WithTTL overrides the freshness window. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *QueryCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// QueryCache decides whether a previously fetched result set may be reused.
// Storage failures never surface to callers: reads degrade to a miss and
// writes are dropped.
type QueryCache struct {
	storage Storage
	clock   clockwork.Clock
	logger  *log.Logger
	ttl     time.Duration
}

// New constructs a QueryCache over storage.
func New(storage Storage, opts ...Option) *QueryCache {
	c := &QueryCache{
		storage: storage,
		clock:   clockwork.NewRealClock(),
		logger:  log.New(log.Writer(), "[cache] ", log.LstdFlags|log.Lshortfile),
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured freshness window.
func (c *QueryCache) TTL() time.Duration { return c.ttl }

// Get returns the stored entry for key when it is younger than the TTL.
// Results for the today filter are never served from cache.
func (c *QueryCache) Get(ctx context.Context, key Key) (Entry, bool) {
	if key.Filter == FilterToday {
		lookups.WithLabelValues(string(key.Filter), "bypass").Inc()
		return Entry{}, false
	}

	id := key.String()
	raw, ok, err := c.storage.Get(ctx, id)
	if err != nil {
		c.report(&CacheError{Op: "get", Key: id, Err: err})
		lookups.WithLabelValues(string(key.Filter), "error").Inc()
		return Entry{}, false
	}
	if !ok {
		lookups.WithLabelValues(string(key.Filter), "miss").Inc()
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.report(&CacheError{Op: "decode", Key: id, Err: err})
		lookups.WithLabelValues(string(key.Filter), "error").Inc()
		return Entry{}, false
	}

	if c.clock.Since(entry.StoredAt) >= c.ttl {
		lookups.WithLabelValues(string(key.Filter), "expired").Inc()
		return Entry{}, false
	}
	lookups.WithLabelValues(string(key.Filter), "hit").Inc()
	return entry, true
}

// Put stores records under key, stamped with the current time. Writes for the
// today filter are skipped.
func (c *QueryCache) Put(ctx context.Context, key Key, records []domain.AttendanceRecord) {
	if key.Filter == FilterToday {
		writes.WithLabelValues(string(key.Filter), "skipped").Inc()
		return
	}

	id := key.String()
	payload := make([]domain.AttendanceRecord, len(records))
	for i := range records {
		payload[i] = records[i].Clone()
	}
	raw, err := json.Marshal(Entry{Key: id, Payload: payload, StoredAt: c.clock.Now().UTC()})
	if err != nil {
		c.report(&CacheError{Op: "encode", Key: id, Err: err})
		writes.WithLabelValues(string(key.Filter), "error").Inc()
		return
	}
	if err := c.storage.Set(ctx, id, string(raw)); err != nil {
		c.report(&CacheError{Op: "set", Key: id, Err: err})
		writes.WithLabelValues(string(key.Filter), "error").Inc()
		return
	}
	writes.WithLabelValues(string(key.Filter), "stored").Inc()
}

// InvalidateAll removes every entry written under the cache namespace.
func (c *QueryCache) InvalidateAll(ctx context.Context) error {
	removed, err := c.storage.DeletePrefix(ctx, Namespace)
	if err != nil {
		cacheErr := &CacheError{Op: "invalidate", Err: err}
		c.report(cacheErr)
		return cacheErr
	}
	invalidations.Inc()
	invalidatedEntries.Add(float64(removed))
	c.logger.Printf("query cache invalidated (entries=%d)", removed)
	return nil
}

// Invalidate satisfies Invalidator so the local cache can be chained with
// remote invalidators.
func (c *QueryCache) Invalidate(ctx context.Context, reason string) error {
	c.logger.Printf("invalidating query cache: %s", reason)
	return c.InvalidateAll(ctx)
}

func (c *QueryCache) report(err *CacheError) {
	c.logger.Printf("query cache degraded: %v", err)
}
