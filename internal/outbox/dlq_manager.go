package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/attendance/internal/events"
)

// DLQOption configures optional behaviour for the DLQManager.
type DLQOption func(*DLQManager)

// WithDLQLogger overrides the manager logger.
func WithDLQLogger(logger *log.Logger) DLQOption {
	return func(m *DLQManager) {
		m.logger = logger
	}
}

// WithTransitions restricts replay to dead-lettered events of the given
// transitions, e.g. only clock_out after a payroll outage. Empty replays all.
func WithTransitions(transitions ...string) DLQOption {
	return func(m *DLQManager) {
		m.transitions = append(m.transitions[:0], transitions...)
	}
}

// DLQManager replays dead-lettered attendance events into the outbox and
// quarantines the ones that can never be delivered.
type DLQManager struct {
	pool        *pgxpool.Pool
	maxRetries  int
	baseDelay   time.Duration
	transitions []string
	logger      *log.Logger
}

// NewDLQManager constructs a DLQManager with the provided pool and retry configuration.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, opts ...DLQOption) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	m := &DLQManager{
		pool:        pool,
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		transitions: []string{},
		logger:      log.New(log.Writer(), "[dlq] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DLQReport summarises one replay pass.
type DLQReport struct {
	Requeued    int
	Retried     int
	Quarantined int
	// ByTransition counts requeued events per transition name.
	ByTransition map[string]int
}

func (r DLQReport) String() string {
	names := make([]string, 0, len(r.ByTransition))
	for name := range r.ByTransition {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, r.ByTransition[name]))
	}
	return fmt.Sprintf("requeued %d [%s], retrying %d, quarantined %d",
		r.Requeued, strings.Join(parts, " "), r.Retried, r.Quarantined)
}

// RunOnce processes a batch of due DLQ entries.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (DLQReport, error) {
	const query = `SELECT dlq_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
                    FROM outbox_dlq
                   WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
                     AND (cardinality($2::text[]) = 0 OR payload->>'transition' = ANY($2::text[]))
                   ORDER BY created_at
                   LIMIT $1`

	report := DLQReport{ByTransition: map[string]int{}}

	rows, err := m.pool.Query(ctx, query, batchSize, m.transitions)
	if err != nil {
		return report, err
	}
	entries := make([]dlqEntry, 0, batchSize)
	for rows.Next() {
		entry, scanErr := scanDLQEntry(rows)
		if scanErr != nil {
			err = errors.Join(err, scanErr)
			continue
		}
		entries = append(entries, entry)
	}
	rows.Close()
	if rowsErr := rows.Err(); rowsErr != nil {
		err = errors.Join(err, rowsErr)
	}

	for _, entry := range entries {
		outcome, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			err = errors.Join(err, procErr)
			continue
		}
		switch outcome {
		case actionRequeue:
			report.Requeued++
			report.ByTransition[entry.transitionLabel()]++
		case actionRetry:
			report.Retried++
		case actionQuarantine:
			report.Quarantined++
		}
	}
	updateBacklogGauge(ctx, m.pool)
	return report, err
}

type dlqAction int

const (
	actionRequeue dlqAction = iota
	actionRetry
	actionQuarantine
)

// dlqDecision is what to do with an entry before touching the database.
type dlqDecision struct {
	action dlqAction
	cause  string
	reason string
}

// decide picks the fate of a DLQ entry. Entries that can never be delivered
// are quarantined right away instead of burning their retries.
func decide(entry dlqEntry, maxRetries int) dlqDecision {
	switch {
	case entry.EventType != events.TypeAttendanceTransitioned:
		return dlqDecision{actionQuarantine, causeUnknownEvent, fmt.Sprintf("unknown event type %q", entry.EventType)}
	case entry.decodeErr != nil:
		return dlqDecision{actionQuarantine, causeUndecodable, entry.decodeErr.Error()}
	case entry.SchemaSubject == "":
		return dlqDecision{actionQuarantine, causeMissingSchema, "missing schema_subject"}
	case entry.RetryCount >= maxRetries:
		return dlqDecision{actionQuarantine, causeRetryLimit, fmt.Sprintf("retry limit reached after %d attempts for %s %s on %s",
			entry.RetryCount, entry.event.Transition, entry.event.RecordID, entry.event.Date)}
	}
	return dlqDecision{action: actionRequeue}
}

// handleEntry applies the decision for a single DLQ entry.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (dlqAction, error) {
	decision := decide(entry, m.maxRetries)

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decision.action, err
	}
	defer tx.Rollback(ctx)

	if decision.action == actionQuarantine {
		if _, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, decision.reason, entry.ID); err != nil {
			return decision.action, err
		}
		if err := tx.Commit(ctx); err != nil {
			return decision.action, err
		}
		m.logger.Printf("quarantined dlq entry %d: %s", entry.ID, decision.reason)
		recordDLQQuarantined(entry, decision.cause)
		return actionQuarantine, nil
	}

	if insertErr := requeueOutbox(ctx, tx, entry); insertErr != nil {
		// The failed insert aborted the transaction; schedule the retry on a fresh one.
		tx.Rollback(ctx)
		delay := m.backoffDelay(entry.RetryCount + 1)
		if _, err := m.pool.Exec(ctx,
			`UPDATE outbox_dlq
			   SET retry_count = retry_count + 1,
			       last_attempt_at = NOW(),
			       next_retry_at = NOW() + make_interval(secs => $1),
			       reason = $2
			 WHERE dlq_id = $3`,
			delay.Seconds(), insertErr.Error(), entry.ID,
		); err != nil {
			return actionRetry, err
		}
		recordDLQRetry(entry)
		return actionRetry, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return actionRequeue, err
	}
	if err := tx.Commit(ctx); err != nil {
		return actionRequeue, err
	}
	recordDLQRequeued(entry)
	return actionRequeue, nil
}

// backoffDelay calculates exponential backoff capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

// requeueOutbox reinserts the payload into the primary outbox table for replay.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
                   VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := tx.Exec(ctx, stmt,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Topic,
		entry.SchemaSubject,
		entry.PartitionKey,
		entry.Payload,
	)
	return err
}

// dlqEntry represents an outbox_dlq row selected for processing, with its
// payload decoded as an attendance transition.
type dlqEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int

	event     events.AttendanceTransitioned
	decodeErr error
}

func (e dlqEntry) transitionLabel() string {
	if e.decodeErr != nil || e.event.Transition == "" {
		return "unknown"
	}
	return e.event.Transition
}

func scanDLQEntry(rows pgx.Rows) (dlqEntry, error) {
	var entry dlqEntry
	if err := rows.Scan(&entry.ID, &entry.EventID, &entry.EventType, &entry.Topic, &entry.Payload, &entry.Reason, &entry.AggregateType, &entry.AggregateID, &entry.SchemaSubject, &entry.PartitionKey, &entry.RetryCount); err != nil {
		return dlqEntry{}, err
	}
	if entry.EventType == events.TypeAttendanceTransitioned {
		entry.event, entry.decodeErr = events.DecodeTransitioned(entry.Payload)
	}
	return entry, nil
}
