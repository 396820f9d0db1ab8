package api

import (
	"time"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/query"
	"example.com/attendance/internal/stats"
)

// ClockInRequest is the payload for POST /v1/attendance/clock-in. Every field is optional:
// the date defaults to the day of At, and At defaults to now.
type ClockInRequest struct {
	Date     string           `json:"date,omitempty"`
	At       time.Time        `json:"at,omitempty"`
	Location *domain.Location `json:"location,omitempty"`
	Device   string           `json:"device,omitempty"`
}

// TransitionRequest is the payload for POST /v1/attendance/{id}/transitions.
type TransitionRequest struct {
	Transition  string    `json:"transition"`
	At          time.Time `json:"at,omitempty"`
	HoursWorked string    `json:"hours_worked,omitempty"`
}

// RecordView is a record together with its derived state.
type RecordView struct {
	domain.AttendanceRecord
	State domain.WorkdayState `json:"state"`
}

func toRecordView(rec domain.AttendanceRecord) RecordView {
	return RecordView{AttendanceRecord: rec, State: domain.StateOf(rec)}
}

// FilterView echoes the resolved date window.
type FilterView struct {
	Kind  string      `json:"kind"`
	Start domain.Date `json:"start"`
	End   domain.Date `json:"end"`
}

func newFilterView(f query.Filter) FilterView {
	return FilterView{Kind: string(f.Kind), Start: f.Start, End: f.End}
}

// ListRecordsResponse packages list results.
type ListRecordsResponse struct {
	Scope     string       `json:"scope"`
	Filter    FilterView   `json:"filter"`
	FromCache bool         `json:"from_cache"`
	Items     []RecordView `json:"items"`
}

// StatsResponse carries the dashboard aggregates for the filtered records.
type StatsResponse struct {
	Scope   string        `json:"scope"`
	Filter  FilterView    `json:"filter"`
	Summary stats.Summary `json:"summary"`
}
