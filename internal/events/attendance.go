// Package events defines the attendance event payloads published through the outbox.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/attendance/internal/domain"
)

// Event type names.
const (
	TypeAttendanceTransitioned = "attendance.transitioned"
)

// Kafka header keys set by the outbox dispatcher on every attendance event.
const (
	HeaderEventType     = "event_type"
	HeaderAggregateID   = "aggregate_id"
	HeaderUserID        = "user_id"
	HeaderSchemaSubject = "schema_subject"
	HeaderTransition    = "transition"
	HeaderWorkDate      = "work_date"
)

// AttendanceTransitioned is emitted for every accepted workday transition.
type AttendanceTransitioned struct {
	RecordID    string    `json:"record_id"`
	UserID      string    `json:"user_id"`
	Date        string    `json:"date"`
	Transition  string    `json:"transition"`
	FromState   string    `json:"from_state"`
	ToState     string    `json:"to_state"`
	OccurredAt  time.Time `json:"occurred_at"`
	HoursWorked string    `json:"hours_worked,omitempty"`
}

// ErrMalformedTransition marks payloads that cannot be an attendance transition.
var ErrMalformedTransition = errors.New("malformed attendance transition")

// DecodeTransitioned parses an attendance.transitioned payload. The record id
// and a known transition name are required; the rest may be blank.
func DecodeTransitioned(payload []byte) (AttendanceTransitioned, error) {
	var event AttendanceTransitioned
	if err := json.Unmarshal(payload, &event); err != nil {
		return AttendanceTransitioned{}, fmt.Errorf("%w: %v", ErrMalformedTransition, err)
	}
	if event.RecordID == "" {
		return AttendanceTransitioned{}, fmt.Errorf("%w: missing record_id", ErrMalformedTransition)
	}
	if _, err := domain.ParseTransition(event.Transition); err != nil {
		return AttendanceTransitioned{}, fmt.Errorf("%w: %v", ErrMalformedTransition, err)
	}
	return event, nil
}
