package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/events"
	"example.com/attendance/internal/observability"
	"example.com/attendance/internal/query"
)

const recordColumns = `record_id, user_id, work_date, entry, breaks, lunch, exit, hours_worked`

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// Repository provides Postgres-backed persistence for attendance records and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get retrieves a record by ID.
func (r *Repository) Get(ctx context.Context, recordID string) (*domain.AttendanceRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE record_id=$1`, recordID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByUserAndDate retrieves the user's record for a calendar day.
func (r *Repository) FindByUserAndDate(ctx context.Context, userID string, date domain.Date) (*domain.AttendanceRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE user_id=$1 AND work_date=$2`, userID, dateValue(date))
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save upserts the record and records the transition in the outbox inside a single transaction.
func (r *Repository) Save(ctx context.Context, record domain.AttendanceRecord, event domain.TransitionEvent) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	entry, err := jsonOrNull(record.Entry)
	if err != nil {
		return err
	}
	breaks := record.Breaks
	if breaks == nil {
		breaks = []domain.Interval{}
	}
	breaksJSON, err := json.Marshal(breaks)
	if err != nil {
		return err
	}
	lunch, err := jsonOrNull(record.Lunch)
	if err != nil {
		return err
	}
	exit, err := jsonOrNull(record.Exit)
	if err != nil {
		return err
	}

	const upsert = `INSERT INTO attendance_records (record_id, user_id, work_date, entry, breaks, lunch, exit, hours_worked, state, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
        ON CONFLICT (record_id) DO UPDATE SET
            entry=EXCLUDED.entry, breaks=EXCLUDED.breaks, lunch=EXCLUDED.lunch, exit=EXCLUDED.exit,
            hours_worked=EXCLUDED.hours_worked, state=EXCLUDED.state, updated_at=NOW()`

	_, err = tx.Exec(ctx, upsert,
		record.ID,
		record.UserID,
		dateValue(record.Date),
		entry,
		breaksJSON,
		lunch,
		exit,
		record.HoursWorked,
		string(domain.StateOf(record)),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = domain.ErrRecordExists
		}
		return err
	}

	if err = insertOutbox(ctx, tx, record, event); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordTransitionPersisted(event.At)
	return nil
}

// Query returns records between q.Start and q.End inclusive, newest first. Any
// failure is reported as a RemoteFetchError.
func (r *Repository) Query(ctx context.Context, q query.RemoteQuery) ([]domain.AttendanceRecord, error) {
	args := []interface{}{dateValue(q.Start), dateValue(q.End), q.Limit}
	stmt := `SELECT ` + recordColumns + ` FROM attendance_records WHERE work_date BETWEEN $1 AND $2`
	if q.OwnerID != "" {
		stmt += ` AND user_id=$4`
		args = append(args, q.OwnerID)
	}
	stmt += ` ORDER BY work_date DESC, record_id DESC LIMIT $3`

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, &domain.RemoteFetchError{Op: "query", Err: err}
	}
	defer rows.Close()

	results := make([]domain.AttendanceRecord, 0, q.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &domain.RemoteFetchError{Op: "scan", Err: err}
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RemoteFetchError{Op: "query", Err: err}
	}
	return results, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, record domain.AttendanceRecord, event domain.TransitionEvent) error {
	const eventType = events.TypeAttendanceTransitioned
	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	body, err := json.Marshal(events.AttendanceTransitioned{
		RecordID:    event.RecordID,
		UserID:      event.UserID,
		Date:        event.Date.String(),
		Transition:  string(event.Transition),
		FromState:   string(event.From),
		ToState:     string(event.To),
		OccurredAt:  event.At.UTC(),
		HoursWorked: record.HoursWorked,
	})
	if err != nil {
		return err
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", record.ID, event.Transition, event.At.UnixNano())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"attendance_record",
		record.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(record),
		body,
		dedupeKey,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (domain.AttendanceRecord, error) {
	var (
		rec                        domain.AttendanceRecord
		workDate                   time.Time
		entry, breaks, lunch, exit []byte
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &workDate, &entry, &breaks, &lunch, &exit, &rec.HoursWorked); err != nil {
		return domain.AttendanceRecord{}, err
	}
	rec.Date = domain.DateOf(workDate)

	if err := decodeNullable(entry, &rec.Entry); err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("decode entry of %s: %w", rec.ID, err)
	}
	if len(breaks) > 0 {
		if err := json.Unmarshal(breaks, &rec.Breaks); err != nil {
			return domain.AttendanceRecord{}, fmt.Errorf("decode breaks of %s: %w", rec.ID, err)
		}
	}
	if len(rec.Breaks) == 0 {
		rec.Breaks = nil
	}
	if err := decodeNullable(lunch, &rec.Lunch); err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("decode lunch of %s: %w", rec.ID, err)
	}
	if err := decodeNullable(exit, &rec.Exit); err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("decode exit of %s: %w", rec.ID, err)
	}
	if err := domain.Validate(rec); err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("stored record %s: %w", rec.ID, err)
	}
	return rec, nil
}

func decodeNullable(raw []byte, dest interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func jsonOrNull(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case *domain.Entry:
		if v == nil {
			return nil, nil
		}
	case *domain.Interval:
		if v == nil {
			return nil, nil
		}
	case *domain.Exit:
		if v == nil {
			return nil, nil
		}
	}
	return json.Marshal(value)
}

// dateValue renders d as a UTC midnight so pgx encodes it as the same DATE.
func dateValue(d domain.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.AttendanceRecord) string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeAttendanceTransitioned: {
		Topic:         "attendance_events",
		SchemaSubject: "attendance_events-value",
		PartitionKeyFn: func(r domain.AttendanceRecord) string {
			return r.UserID
		},
	},
}
