package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRecordNotFound is returned when an attendance record cannot be located.
	ErrRecordNotFound = errors.New("attendance record not found")
	// ErrRecordExists is returned when a second record is created for the same user and day.
	ErrRecordExists = errors.New("attendance record already exists for this day")
	// ErrForbidden is returned when a user attempts to mutate another user's record.
	ErrForbidden = errors.New("attendance record belongs to another user")
	// ErrMissingTimestamp is returned when a transition is requested without a time.
	ErrMissingTimestamp = errors.New("transition timestamp is required")
	// ErrInvalidRecord wraps invariant violations found in stored records.
	ErrInvalidRecord = errors.New("attendance record violates workday invariants")
)

// InvalidTransitionError reports a transition that is illegal from the record's derived state.
type InvalidTransitionError struct {
	Transition Transition
	From       WorkdayState
	Reason     string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s from state %s: %s", e.Transition, e.From, e.Reason)
	}
	return fmt.Sprintf("cannot %s from state %s", e.Transition, e.From)
}

// TemporalOrderingError reports a timestamp that does not strictly follow the record's latest event.
type TemporalOrderingError struct {
	Transition Transition
	At         time.Time
	Previous   time.Time
}

func (e *TemporalOrderingError) Error() string {
	return fmt.Sprintf("%s at %s must be after previous event at %s",
		e.Transition, e.At.Format(time.RFC3339), e.Previous.Format(time.RFC3339))
}

// ParseError reports an hoursWorked value outside the H+:MM(:SS)? grammar.
type ParseError struct {
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid hours worked %q: %s", e.Value, e.Reason)
}

// RemoteFetchError wraps a failure of the remote record store.
type RemoteFetchError struct {
	Op  string
	Err error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("remote fetch %s: %v", e.Op, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// IsInvalidTransition reports whether err is or wraps an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsTemporalOrdering reports whether err is or wraps a TemporalOrderingError.
func IsTemporalOrdering(err error) bool {
	var target *TemporalOrderingError
	return errors.As(err, &target)
}

// IsParseError reports whether err is or wraps a ParseError.
func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsRemoteFetch reports whether err is or wraps a RemoteFetchError.
func IsRemoteFetch(err error) bool {
	var target *RemoteFetchError
	return errors.As(err, &target)
}
