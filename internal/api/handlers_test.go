package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"example.com/attendance/internal/access"
	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/cache"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/query"
	"example.com/attendance/internal/report"
)

// memRepo backs both the domain service and the query loader.
type memRepo struct {
	mu       sync.Mutex
	records  map[string]domain.AttendanceRecord
	queries  []query.RemoteQuery
	queryErr error
}

func newMemRepo(records ...domain.AttendanceRecord) *memRepo {
	r := &memRepo{records: make(map[string]domain.AttendanceRecord)}
	for _, rec := range records {
		r.records[rec.ID] = rec
	}
	return r
}

func (r *memRepo) Get(_ context.Context, id string) (*domain.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	clone := rec.Clone()
	return &clone, nil
}

func (r *memRepo) FindByUserAndDate(_ context.Context, userID string, date domain.Date) (*domain.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.UserID == userID && rec.Date == date {
			clone := rec.Clone()
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memRepo) Save(_ context.Context, rec domain.AttendanceRecord, _ domain.TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec.Clone()
	return nil
}

func (r *memRepo) Query(_ context.Context, q query.RemoteQuery) ([]domain.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	if r.queryErr != nil {
		return nil, &domain.RemoteFetchError{Op: "query", Err: r.queryErr}
	}
	out := make([]domain.AttendanceRecord, 0)
	for _, rec := range r.records {
		if q.OwnerID != "" && rec.UserID != q.OwnerID {
			continue
		}
		if rec.Date.Before(q.Start) || rec.Date.After(q.End) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type recordingInvalidator struct {
	reasons []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, reason string) error {
	r.reasons = append(r.reasons, reason)
	return nil
}

var (
	quiet = log.New(io.Discard, "", 0)
	// Wednesday; the week filter resolves to 2025-03-03..2025-03-09.
	now = time.Date(2025, time.March, 5, 18, 0, 0, 0, time.UTC)
)

func ts(day, hour, minute int) time.Time {
	return time.Date(2025, time.March, day, hour, minute, 0, 0, time.UTC)
}

func finished(id, user string, day, inHour, inMinute int, hours string) domain.AttendanceRecord {
	return domain.AttendanceRecord{
		ID:          id,
		UserID:      user,
		Date:        domain.NewDate(2025, time.March, day),
		Entry:       &domain.Entry{Time: ts(day, inHour, inMinute)},
		Exit:        &domain.Exit{Time: ts(day, 17, 0)},
		HoursWorked: hours,
	}
}

type fixture struct {
	repo    *memRepo
	handler *Handler
	mux     *http.ServeMux
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	repo := newMemRepo(
		finished("rec-a", "user-1", 3, 8, 5, "8:00"),
		finished("rec-b", "user-1", 4, 8, 30, "7:30"),
		finished("rec-c", "user-2", 4, 7, 55, "9:00"),
	)
	clock := clockwork.NewFakeClockAt(now)
	qc := cache.New(cache.NewMemoryStorage(), cache.WithClock(clock), cache.WithLogger(quiet))
	service := domain.NewService(repo, domain.WithClock(clock), domain.WithIDGenerator(func() string { return "rec-new" }))
	loader := query.NewLoader(repo, qc, query.WithLogger(quiet))

	base := []Option{WithClock(clock), WithLogger(quiet)}
	h := NewHandler(service, loader, append(base, opts...)...)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return fixture{repo: repo, handler: h, mux: mux}
}

func (f fixture) do(t *testing.T, method, target, body, user string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if user != "" {
		set := make(map[string]struct{}, len(scopes))
		for _, s := range scopes {
			set[s] = struct{}{}
		}
		req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
			Subject:   user,
			Scopes:    set,
			ExpiresAt: now.Add(time.Hour),
		}))
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, rr)["type"]
}

func TestWorkdayLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	write := auth.ScopeAttendanceWrite

	rr := f.do(t, http.MethodPost, "/v1/attendance/clock-in", `{"at":"2025-03-05T08:02:00Z","device":"kiosk"}`, "user-3", write)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[RecordView](t, rr)
	require.Equal(t, "rec-new", created.ID)
	require.Equal(t, domain.StateWorking, created.State)
	require.Equal(t, "2025-03-05", created.Date.String())

	rr = f.do(t, http.MethodPost, "/v1/attendance/clock-in", `{"at":"2025-03-05T08:30:00Z"}`, "user-3", write)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "invalid_transition", errorType(t, rr))

	rr = f.do(t, http.MethodPost, "/v1/attendance/rec-new/transitions", `{"transition":"break_start","at":"2025-03-05T10:00:00Z"}`, "user-3", write)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, domain.StateOnBreak, decode[RecordView](t, rr).State)

	rr = f.do(t, http.MethodPost, "/v1/attendance/rec-new/transitions", `{"transition":"break_start","at":"2025-03-05T10:05:00Z"}`, "user-3", write)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/attendance/rec-new/transitions", `{"transition":"clock_out","at":"2025-03-05T10:10:00Z"}`, "user-3", write)
	require.Equal(t, http.StatusConflict, rr.Code, "clock-out must wait for the break to end")

	rr = f.do(t, http.MethodPost, "/v1/attendance/rec-new/transitions", `{"transition":"break_end","at":"2025-03-05T09:00:00Z"}`, "user-3", write)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "temporal_ordering", errorType(t, rr))

	rr = f.do(t, http.MethodPost, "/v1/attendance/rec-new/transitions", `{"transition":"break_end","at":"2025-03-05T10:15:00Z"}`, "user-3", write)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/attendance/rec-new/transitions", `{"transition":"clock_out","at":"2025-03-05T16:17:00Z","hours_worked":"later"}`, "user-3", write)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "invalid_hours_worked", errorType(t, rr))

	rr = f.do(t, http.MethodPost, "/v1/attendance/rec-new/transitions", `{"transition":"clock_out","at":"2025-03-05T16:17:00Z"}`, "user-3", write)
	require.Equal(t, http.StatusOK, rr.Code)
	done := decode[RecordView](t, rr)
	require.Equal(t, domain.StateFinished, done.State)
	require.Equal(t, "8:00:00", done.HoursWorked)
}

func TestTransitionValidation(t *testing.T) {
	f := newFixture(t)
	write := auth.ScopeAttendanceWrite

	rr := f.do(t, http.MethodPost, "/v1/attendance/rec-a/transitions", `{"transition":"nap"}`, "user-1", write)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/attendance/rec-a/transitions", `{not json`, "user-1", write)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/attendance/rec-c/transitions", `{"transition":"break_start"}`, "user-1", write)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/attendance/missing/transitions", `{"transition":"break_start"}`, "user-1", write)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/attendance/rec-a/transitions", `{"transition":"break_start"}`, "user-1", auth.ScopeAttendanceReadOwn)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/attendance/clock-in", `{}`, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, http.MethodDelete, "/v1/attendance/rec-a", "", "user-1", write)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestListRecordsHonoursScope(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/attendance?filter=week", "", "user-1", auth.ScopeAttendanceReadOwn)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	own := decode[ListRecordsResponse](t, rr)
	require.Equal(t, "own", own.Scope)
	require.Equal(t, "2025-03-03", own.Filter.Start.String())
	require.Equal(t, "2025-03-09", own.Filter.End.String())
	require.False(t, own.FromCache)
	require.Len(t, own.Items, 2)
	require.Equal(t, "rec-b", own.Items[0].ID, "newest first")
	require.Equal(t, query.RemoteQuery{
		OwnerID: "user-1",
		Start:   own.Filter.Start,
		End:     own.Filter.End,
		Limit:   access.OwnRecordsLimit,
	}, f.repo.queries[0])

	rr = f.do(t, http.MethodGet, "/v1/attendance?filter=week", "", "user-1", auth.ScopeAttendanceReadOwn)
	require.True(t, decode[ListRecordsResponse](t, rr).FromCache)
	require.Len(t, f.repo.queries, 1)

	rr = f.do(t, http.MethodGet, "/v1/attendance?filter=week", "", "user-1", auth.ScopeAttendanceReadOwn, auth.ScopeAttendanceReadAll)
	all := decode[ListRecordsResponse](t, rr)
	require.Equal(t, "all", all.Scope)
	require.False(t, all.FromCache, "a different scope never reuses the OWN entry")
	require.Len(t, all.Items, 3)

	rr = f.do(t, http.MethodGet, "/v1/attendance", "", "user-1", auth.ScopeAttendanceWrite)
	require.Equal(t, http.StatusOK, rr.Code)
	none := decode[ListRecordsResponse](t, rr)
	require.Equal(t, "none", none.Scope)
	require.NotNil(t, none.Items)
	require.Empty(t, none.Items)
	require.Len(t, f.repo.queries, 2)
}

func TestListRecordsFilterValidation(t *testing.T) {
	f := newFixture(t)
	read := auth.ScopeAttendanceReadAll

	rr := f.do(t, http.MethodGet, "/v1/attendance?filter=decade", "", "user-1", read)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/attendance?filter=range&start=2025-03-09&end=2025-03-01", "", "user-1", read)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/attendance?filter=range&start=2025-03-04&end=2025-03-04", "", "user-1", read)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[ListRecordsResponse](t, rr).Items, 2)

	rr = f.do(t, http.MethodGet, "/v1/attendance", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestListRecordsRemoteFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.queryErr = errors.New("connection refused")

	rr := f.do(t, http.MethodGet, "/v1/attendance?filter=month", "", "user-1", auth.ScopeAttendanceReadAll)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Equal(t, "remote_unavailable", errorType(t, rr))
}

func TestScopeChangeInvalidatesCache(t *testing.T) {
	inv := &recordingInvalidator{}
	watcher := access.NewWatcher([]access.ChangeFunc{cache.OnScopeChange(inv)}, access.WithWatcherLogger(quiet))
	f := newFixture(t, WithWatcher(watcher))

	f.do(t, http.MethodGet, "/v1/attendance", "", "user-1", auth.ScopeAttendanceReadOwn)
	f.do(t, http.MethodGet, "/v1/attendance", "", "user-1", auth.ScopeAttendanceReadOwn)
	require.Empty(t, inv.reasons)

	f.do(t, http.MethodGet, "/v1/attendance", "", "user-1", auth.ScopeAttendanceReadAll)
	require.Len(t, inv.reasons, 1)
	require.Contains(t, inv.reasons[0], "own -> all")
}

func TestGetRecordVisibility(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/attendance/rec-a", "", "user-1", auth.ScopeAttendanceReadOwn)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, domain.StateFinished, decode[RecordView](t, rr).State)

	rr = f.do(t, http.MethodGet, "/v1/attendance/rec-c", "", "user-1", auth.ScopeAttendanceReadOwn)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/attendance/rec-c", "", "user-1", auth.ScopeAttendanceReadAll)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/attendance/rec-a", "", "user-1", auth.ScopeAttendanceWrite)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRecordStats(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/attendance/stats?filter=week", "", "user-1", auth.ScopeAttendanceReadAll)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[StatsResponse](t, rr)
	require.Equal(t, 3, resp.Summary.Totals.DaysWorked)
	require.Equal(t, 24, resp.Summary.Totals.TotalHoursWorked)
	require.Equal(t, 3, resp.Summary.Punctuality.Eligible)
	require.Equal(t, 2, resp.Summary.Punctuality.OnTime)
	require.Equal(t, 67, resp.Summary.Punctuality.Score)
	require.Equal(t, 3, resp.Summary.StateCounts[domain.StateFinished])
}

func TestExportWorkbook(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/attendance/export?filter=week", "", "user-1", auth.ScopeAttendanceReadOwn)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "attendance-2025-03-03-2025-03-09.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	require.Equal(t, []string{report.RecordsSheet, report.SummarySheet}, book.GetSheetList())
	rows, err := book.GetRows(report.RecordsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestPurgeCacheRequiresAdmin(t *testing.T) {
	inv := &recordingInvalidator{}
	f := newFixture(t, WithInvalidator(inv))

	rr := f.do(t, http.MethodPost, "/internal/cache/invalidate", "deploy", "svc", auth.ScopeAttendanceReadAll)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Empty(t, inv.reasons)

	rr = f.do(t, http.MethodPost, "/internal/cache/invalidate", "clock_out rec-1", "svc", auth.ScopeAttendanceAdmin)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, []string{"clock_out rec-1"}, inv.reasons)

	rr = f.do(t, http.MethodPost, "/internal/cache/invalidate", "", "svc", auth.ScopeAttendanceAdmin)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "manual purge", inv.reasons[1])
}

func TestPurgeDropsCachedResults(t *testing.T) {
	f := newFixture(t)
	read := auth.ScopeAttendanceReadAll

	f.do(t, http.MethodGet, "/v1/attendance?filter=week", "", "user-1", read)
	rr := f.do(t, http.MethodGet, "/v1/attendance?filter=week", "", "user-1", read)
	require.True(t, decode[ListRecordsResponse](t, rr).FromCache)

	rr = f.do(t, http.MethodPost, "/internal/cache/invalidate", "test", "svc", auth.ScopeAttendanceAdmin)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/attendance?filter=week", "", "user-1", read)
	require.False(t, decode[ListRecordsResponse](t, rr).FromCache)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}
