// Package api exposes HTTP handlers for the attendance service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"example.com/attendance/internal/access"
	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/cache"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/observability"
	"example.com/attendance/internal/query"
	"example.com/attendance/internal/report"
	"example.com/attendance/internal/stats"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Option configures optional behaviour for the Handler.
type Option func(*Handler)

// WithWatcher resolves scopes through w so permission changes invalidate the cache.
func WithWatcher(w *access.Watcher) Option {
	return func(h *Handler) {
		h.watcher = w
	}
}

// WithSchedule sets the workday schedule used for punctuality.
func WithSchedule(schedule domain.ScheduleConfig) Option {
	return func(h *Handler) {
		h.schedule = schedule
	}
}

// WithLocation sets the zone used for "today", filters and rendered times.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		if loc != nil {
			h.location = loc
		}
	}
}

// WithClock overrides the clock used to resolve relative filters.
func WithClock(clock clockwork.Clock) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithInvalidator overrides what the purge endpoint invalidates. Defaults to the loader's cache.
func WithInvalidator(inv cache.Invalidator) Option {
	return func(h *Handler) {
		h.invalidator = inv
	}
}

// WithLogger overrides the handler logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// Handler coordinates HTTP requests with the domain service and the query layer.
type Handler struct {
	service     *domain.Service
	loader      *query.Loader
	engine      *stats.Engine
	watcher     *access.Watcher
	invalidator cache.Invalidator
	schedule    domain.ScheduleConfig
	location    *time.Location
	clock       clockwork.Clock
	logger      *log.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, loader *query.Loader, opts ...Option) *Handler {
	h := &Handler{
		service:  service,
		loader:   loader,
		schedule: domain.DefaultSchedule(),
		location: time.UTC,
		clock:    clockwork.NewRealClock(),
		logger:   log.New(log.Writer(), "[api] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.invalidator == nil && loader != nil {
		h.invalidator = loader.Cache()
	}
	h.engine = stats.NewEngine(stats.WithLocation(h.location), stats.WithLogger(h.logger))
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/attendance", h.listRecords)
	mux.HandleFunc("/v1/attendance/clock-in", h.clockIn)
	mux.HandleFunc("/v1/attendance/stats", h.recordStats)
	mux.HandleFunc("/v1/attendance/export", h.exportRecords)
	mux.HandleFunc("/v1/attendance/", h.recordByID)
	mux.HandleFunc("/internal/cache/invalidate", h.purgeCache)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) recordByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/attendance/"), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing record id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getRecord(w, r, id)
	case action == "transitions" && r.Method == http.MethodPost:
		h.applyTransition(w, r, id)
	case action == "" || action == "transitions":
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) clockIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeAttendanceWrite)
	if !ok {
		return
	}

	var req ClockInRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	at := req.At
	if at.IsZero() {
		at = h.clock.Now()
	}
	at = at.In(h.location)

	var date domain.Date
	if req.Date != "" {
		parsed, err := domain.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		date = parsed
	}

	record, err := h.service.ClockIn(r.Context(), domain.ClockInInput{
		UserID:   claims.Subject,
		Date:     date,
		At:       at,
		Location: req.Location,
		Device:   req.Device,
	})
	if err != nil {
		observability.RecordTransition(string(domain.TransitionClockIn), outcomeOf(err))
		h.writeDomainError(w, err)
		return
	}
	observability.RecordTransition(string(domain.TransitionClockIn), "accepted")
	writeJSON(w, http.StatusCreated, toRecordView(*record))
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeAttendanceWrite)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	transition, err := domain.ParseTransition(req.Transition)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	at := req.At
	if at.IsZero() {
		at = h.clock.Now()
	}

	record, err := h.service.Transition(r.Context(), domain.TransitionInput{
		RecordID:    id,
		UserID:      claims.Subject,
		Transition:  transition,
		At:          at.In(h.location),
		HoursWorked: req.HoursWorked,
	})
	if err != nil {
		observability.RecordTransition(string(transition), outcomeOf(err))
		h.writeDomainError(w, err)
		return
	}
	observability.RecordTransition(string(transition), "accepted")
	writeJSON(w, http.StatusOK, toRecordView(*record))
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	scope, err := h.resolveScope(r.Context(), claims)
	if err != nil {
		h.logger.Printf("scope change listeners failed for %s: %v", claims.Subject, err)
	}
	if scope == access.ScopeNone {
		writeError(w, http.StatusForbidden, "forbidden", "no attendance visibility")
		return
	}

	record, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if scope == access.ScopeOwn && record.UserID != claims.Subject {
		writeError(w, http.StatusNotFound, "not_found", domain.ErrRecordNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRecordView(*record))
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	result, filter, ok := h.load(w, r)
	if !ok {
		return
	}

	items := make([]RecordView, 0, len(result.Records))
	for _, rec := range result.Records {
		items = append(items, toRecordView(rec))
	}
	writeJSON(w, http.StatusOK, ListRecordsResponse{
		Scope:     string(result.Scope),
		Filter:    newFilterView(filter),
		FromCache: result.FromCache,
		Items:     items,
	})
}

func (h *Handler) recordStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	result, filter, ok := h.load(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Scope:   string(result.Scope),
		Filter:  newFilterView(filter),
		Summary: h.engine.Summarize(result.Records, h.schedule),
	})
}

func (h *Handler) exportRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	result, filter, ok := h.load(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	summary := h.engine.Summarize(result.Records, h.schedule)
	if err := report.WriteWorkbook(&buf, result.Records, summary, h.location); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance-%s-%s.xlsx"`, filter.Start, filter.End))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) purgeCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeAttendanceAdmin); !ok {
		return
	}

	body, _ := io.ReadAll(io.LimitReader(r.Body, 1024))
	reason := strings.TrimSpace(string(body))
	if reason == "" {
		reason = "manual purge"
	}
	if h.invalidator == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.invalidator.Invalidate(r.Context(), reason); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// load authenticates the caller, resolves the filter and scope, and runs the
// scoped query. It writes the error response itself and reports ok=false.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (query.Result, query.Filter, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return query.Result{}, query.Filter{}, false
	}

	filter, err := h.parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return query.Result{}, query.Filter{}, false
	}

	scope, err := h.resolveScope(r.Context(), claims)
	if err != nil {
		h.logger.Printf("scope change listeners failed for %s: %v", claims.Subject, err)
	}

	result, err := h.loader.Load(r.Context(), query.Request{UserID: claims.Subject, Scope: scope, Filter: filter})
	if err != nil {
		h.writeDomainError(w, err)
		return query.Result{}, query.Filter{}, false
	}
	return result, filter, true
}

func (h *Handler) resolveScope(ctx context.Context, claims *auth.Claims) (access.Scope, error) {
	perms := auth.PermissionsFromClaims(claims)
	if h.watcher == nil {
		return access.ResolveScope(perms), nil
	}
	return h.watcher.Resolve(ctx, claims.Subject, perms)
}

func (h *Handler) parseFilter(r *http.Request) (query.Filter, error) {
	q := r.URL.Query()
	raw := q.Get("filter")
	if raw == "" {
		raw = string(cache.FilterWeek)
	}
	kind, err := cache.ParseFilterKind(raw)
	if err != nil {
		return query.Filter{}, err
	}

	var start, end domain.Date
	if kind == cache.FilterRange {
		if start, err = domain.ParseDate(q.Get("start")); err != nil {
			return query.Filter{}, err
		}
		if end, err = domain.ParseDate(q.Get("end")); err != nil {
			return query.Filter{}, err
		}
	}
	return query.ResolveFilter(kind, h.clock.Now().In(h.location), start, end)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var invalid *domain.InvalidTransitionError
	var ordering *domain.TemporalOrderingError
	var parse *domain.ParseError
	var remote *domain.RemoteFetchError

	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrRecordExists):
		writeError(w, http.StatusConflict, "record_exists", err.Error())
	case errors.As(err, &ordering):
		writeError(w, http.StatusUnprocessableEntity, "temporal_ordering", err.Error())
	case errors.As(err, &parse):
		writeError(w, http.StatusUnprocessableEntity, "invalid_hours_worked", err.Error())
	case errors.Is(err, domain.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &remote):
		h.logger.Printf("remote store failure: %v", err)
		writeError(w, http.StatusBadGateway, "remote_unavailable", "attendance store unavailable")
	default:
		h.logger.Printf("unexpected error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// outcomeOf classifies a transition failure for the transitions counter.
func outcomeOf(err error) string {
	switch {
	case domain.IsInvalidTransition(err), errors.Is(err, domain.ErrRecordExists):
		return "invalid"
	case domain.IsTemporalOrdering(err):
		return "out_of_order"
	default:
		return "error"
	}
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
