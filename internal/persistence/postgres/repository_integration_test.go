//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/query"
)

func TestRepositoryRoundTripAndScopedQuery(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)
	repo := NewRepository(pool)

	userID := uuid.NewString()
	day := domain.NewDate(2025, time.March, 3)
	entry := time.Date(2025, 3, 3, 8, 5, 0, 0, time.UTC)

	rec, err := domain.ClockIn(domain.AttendanceRecord{ID: uuid.NewString(), UserID: userID, Date: day}, entry, &domain.Location{Lat: 1.5, Lon: -2.25}, "kiosk")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, rec, domain.TransitionEvent{
		RecordID: rec.ID, UserID: userID, Date: day, Transition: domain.TransitionClockIn,
		From: domain.StateNotStarted, To: domain.StateWorking, At: entry,
	}))

	rec, err = domain.StartBreak(rec, entry.Add(2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, rec, domain.TransitionEvent{
		RecordID: rec.ID, UserID: userID, Date: day, Transition: domain.TransitionBreakStart,
		From: domain.StateWorking, To: domain.StateOnBreak, At: entry.Add(2 * time.Hour),
	}))

	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, day, stored.Date)
	require.Equal(t, domain.StateOnBreak, stored.State())
	require.Equal(t, "kiosk", stored.Entry.Device)
	require.Len(t, stored.Breaks, 1)

	byDay, err := repo.FindByUserAndDate(ctx, userID, day)
	require.NoError(t, err)
	require.Equal(t, rec.ID, byDay.ID)

	missing, err := repo.Get(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)

	duplicate := domain.AttendanceRecord{ID: uuid.NewString(), UserID: userID, Date: day}
	duplicate, err = domain.ClockIn(duplicate, entry, nil, "")
	require.NoError(t, err)
	err = repo.Save(ctx, duplicate, domain.TransitionEvent{RecordID: duplicate.ID, UserID: userID, Date: day, Transition: domain.TransitionClockIn, At: entry})
	require.ErrorIs(t, err, domain.ErrRecordExists)

	own, err := repo.Query(ctx, query.RemoteQuery{OwnerID: userID, Start: day, End: day.AddDays(6), Limit: 100})
	require.NoError(t, err)
	require.Len(t, own, 1)

	other, err := repo.Query(ctx, query.RemoteQuery{OwnerID: uuid.NewString(), Start: day, End: day.AddDays(6), Limit: 100})
	require.NoError(t, err)
	require.Empty(t, other)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE aggregate_id=$1`, rec.ID).Scan(&outboxRows))
	require.Equal(t, 2, outboxRows)
}

func TestRepositoryQueryFailureIsRemoteFetchError(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)
	repo := NewRepository(pool)
	pool.Close()

	_, err := repo.Query(ctx, query.RemoteQuery{Start: domain.NewDate(2025, 1, 1), End: domain.NewDate(2025, 1, 31), Limit: 10})
	require.True(t, domain.IsRemoteFetch(err))
}

func TestRepositoryRejectsCorruptRows(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)
	repo := NewRepository(pool)

	userID := uuid.NewString()
	recordID := uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO attendance_records (record_id, user_id, work_date, exit, state)
         VALUES ($1, $2, '2025-03-04', '{"time":"2025-03-04T17:00:00Z"}', 'completed')`,
		recordID, userID)
	require.NoError(t, err)

	_, err = repo.Get(ctx, recordID)
	require.ErrorIs(t, err, domain.ErrInvalidRecord)

	_, err = repo.FindByUserAndDate(ctx, userID, domain.NewDate(2025, time.March, 4))
	require.ErrorIs(t, err, domain.ErrInvalidRecord)

	_, err = repo.Query(ctx, query.RemoteQuery{OwnerID: userID, Start: domain.NewDate(2025, time.March, 1), End: domain.NewDate(2025, time.March, 31), Limit: 10})
	require.True(t, domain.IsRemoteFetch(err))
	require.ErrorIs(t, err, domain.ErrInvalidRecord)
}

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("attendance"),
		postgrescontainer.WithUsername("attendance"),
		postgrescontainer.WithPassword("attendance"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	contents, err := os.ReadFile(resolvePath(t, "../../../db/postgres/migrations/0001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
