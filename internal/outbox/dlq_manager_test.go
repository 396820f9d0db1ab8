package outbox

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/events"
)

func dlqTransition(payload string, retries int) dlqEntry {
	entry := dlqEntry{
		ID:            7,
		EventType:     events.TypeAttendanceTransitioned,
		Topic:         "attendance_events",
		SchemaSubject: "attendance_events-value",
		Payload:       []byte(payload),
		RetryCount:    retries,
	}
	entry.event, entry.decodeErr = events.DecodeTransitioned(entry.Payload)
	return entry
}

const clockOutPayload = `{"record_id":"rec-9","user_id":"user-1","date":"2025-03-04","transition":"clock_out"}`

func TestDecideRequeuesDeliverableTransitions(t *testing.T) {
	d := decide(dlqTransition(clockOutPayload, 2), 5)
	require.Equal(t, actionRequeue, d.action)
	require.Empty(t, d.cause)
}

func TestDecideQuarantinesAfterRetryLimit(t *testing.T) {
	d := decide(dlqTransition(clockOutPayload, 5), 5)
	require.Equal(t, actionQuarantine, d.action)
	require.Equal(t, causeRetryLimit, d.cause)
	require.Equal(t, "retry limit reached after 5 attempts for clock_out rec-9 on 2025-03-04", d.reason)
}

func TestDecideQuarantinesUndeliverableEntriesImmediately(t *testing.T) {
	undecodable := dlqTransition(`{"record_id":"rec-9","transition":"nap"}`, 0)
	require.ErrorIs(t, undecodable.decodeErr, events.ErrMalformedTransition)
	d := decide(undecodable, 5)
	require.Equal(t, actionQuarantine, d.action)
	require.Equal(t, causeUndecodable, d.cause)
	require.Equal(t, "unknown", undecodable.transitionLabel())

	foreign := dlqTransition(clockOutPayload, 0)
	foreign.EventType = "activity.created"
	require.Equal(t, causeUnknownEvent, decide(foreign, 5).cause)

	noSchema := dlqTransition(clockOutPayload, 0)
	noSchema.SchemaSubject = ""
	require.Equal(t, causeMissingSchema, decide(noSchema, 5).cause)
}

func TestDecideChecksDeliverabilityBeforeRetries(t *testing.T) {
	entry := dlqTransition(clockOutPayload, 9)
	entry.decodeErr = errors.New("truncated")
	require.Equal(t, causeUndecodable, decide(entry, 5).cause)
}

func TestDLQReportString(t *testing.T) {
	r := DLQReport{Requeued: 3, Retried: 1, Quarantined: 2, ByTransition: map[string]int{"clock_out": 2, "clock_in": 1}}
	require.Equal(t, "requeued 3 [clock_in=1 clock_out=2], retrying 1, quarantined 2", r.String())
}

func TestNewDLQManagerDefaultsAndOptions(t *testing.T) {
	m := NewDLQManager(nil, 0, 0, WithTransitions("clock_out"), WithDLQLogger(log.New(io.Discard, "", 0)))
	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, []string{"clock_out"}, m.transitions)

	require.Equal(t, m.baseDelay, m.backoffDelay(1))
	require.Equal(t, 4*m.baseDelay, m.backoffDelay(3))
	require.Equal(t, m.baseDelay*60, m.backoffDelay(10))
}
