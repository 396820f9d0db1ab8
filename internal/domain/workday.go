package domain

import (
	"fmt"
	"time"
)

// Transition names a requested workday lifecycle change.
type Transition string

const (
	TransitionClockIn    Transition = "clock_in"
	TransitionBreakStart Transition = "break_start"
	TransitionBreakEnd   Transition = "break_end"
	TransitionLunchStart Transition = "lunch_start"
	TransitionLunchEnd   Transition = "lunch_end"
	TransitionClockOut   Transition = "clock_out"
)

// ParseTransition validates a transition name.
func ParseTransition(value string) (Transition, error) {
	switch t := Transition(value); t {
	case TransitionClockIn, TransitionBreakStart, TransitionBreakEnd,
		TransitionLunchStart, TransitionLunchEnd, TransitionClockOut:
		return t, nil
	}
	return "", fmt.Errorf("unknown transition %q", value)
}

// Command is a transition request with its parameters.
type Command struct {
	Transition Transition
	At         time.Time
	Location   *Location
	Device     string
}

// StateOf derives the workday state purely from the record's fields.
func StateOf(rec AttendanceRecord) WorkdayState {
	switch {
	case rec.Exit != nil:
		return StateFinished
	case rec.Lunch != nil && rec.Lunch.Open():
		return StateAtLunch
	case openBreak(rec) >= 0:
		return StateOnBreak
	case rec.Entry != nil:
		return StateWorking
	default:
		return StateNotStarted
	}
}

// Apply dispatches a command to the matching transition.
func Apply(rec AttendanceRecord, cmd Command) (AttendanceRecord, error) {
	switch cmd.Transition {
	case TransitionClockIn:
		return ClockIn(rec, cmd.At, cmd.Location, cmd.Device)
	case TransitionBreakStart:
		return StartBreak(rec, cmd.At)
	case TransitionBreakEnd:
		return EndBreak(rec, cmd.At)
	case TransitionLunchStart:
		return StartLunch(rec, cmd.At)
	case TransitionLunchEnd:
		return EndLunch(rec, cmd.At)
	case TransitionClockOut:
		return ClockOut(rec, cmd.At)
	}
	return rec, fmt.Errorf("unknown transition %q", cmd.Transition)
}

// ClockIn starts the workday. Legal only from NotStarted.
func ClockIn(rec AttendanceRecord, at time.Time, loc *Location, device string) (AttendanceRecord, error) {
	if err := guard(rec, TransitionClockIn, at, StateNotStarted); err != nil {
		return rec, err
	}
	out := rec.Clone()
	entry := &Entry{Time: at, Device: device}
	if loc != nil {
		l := *loc
		entry.Location = &l
	}
	out.Entry = entry
	return out, nil
}

// StartBreak opens a new break. Legal only from Working.
func StartBreak(rec AttendanceRecord, at time.Time) (AttendanceRecord, error) {
	if err := guard(rec, TransitionBreakStart, at, StateWorking); err != nil {
		return rec, err
	}
	out := rec.Clone()
	out.Breaks = append(out.Breaks, Interval{Start: at})
	return out, nil
}

// EndBreak closes the open break.
func EndBreak(rec AttendanceRecord, at time.Time) (AttendanceRecord, error) {
	if err := guard(rec, TransitionBreakEnd, at, StateOnBreak); err != nil {
		return rec, err
	}
	out := rec.Clone()
	end := at
	out.Breaks[openBreak(out)].End = &end
	return out, nil
}

// StartLunch opens the lunch period. Legal only from Working and only once per day.
func StartLunch(rec AttendanceRecord, at time.Time) (AttendanceRecord, error) {
	if err := guard(rec, TransitionLunchStart, at, StateWorking); err != nil {
		return rec, err
	}
	if rec.Lunch != nil {
		return rec, &InvalidTransitionError{Transition: TransitionLunchStart, From: StateWorking, Reason: "lunch already taken"}
	}
	out := rec.Clone()
	out.Lunch = &Interval{Start: at}
	return out, nil
}

// EndLunch closes the open lunch period.
func EndLunch(rec AttendanceRecord, at time.Time) (AttendanceRecord, error) {
	if err := guard(rec, TransitionLunchEnd, at, StateAtLunch); err != nil {
		return rec, err
	}
	out := rec.Clone()
	end := at
	out.Lunch.End = &end
	return out, nil
}

// ClockOut finishes the workday. Rejected while a break or lunch is open: the
// caller has to close the interruption first.
func ClockOut(rec AttendanceRecord, at time.Time) (AttendanceRecord, error) {
	if err := guard(rec, TransitionClockOut, at, StateWorking); err != nil {
		return rec, err
	}
	out := rec.Clone()
	out.Exit = &Exit{Time: at}
	return out, nil
}

// NetWorked returns exit - entry minus every closed interruption. ok is false
// until the record is finished.
func NetWorked(rec AttendanceRecord) (time.Duration, bool) {
	if rec.Entry == nil || rec.Exit == nil {
		return 0, false
	}
	total := rec.Exit.Time.Sub(rec.Entry.Time)
	for _, b := range rec.Breaks {
		if b.End != nil {
			total -= b.End.Sub(b.Start)
		}
	}
	if rec.Lunch != nil && rec.Lunch.End != nil {
		total -= rec.Lunch.End.Sub(rec.Lunch.Start)
	}
	if total < 0 {
		total = 0
	}
	return total, true
}

// Validate checks the structural invariants of a record loaded from storage.
func Validate(rec AttendanceRecord) error {
	if rec.Entry == nil {
		if len(rec.Breaks) > 0 || rec.Lunch != nil || rec.Exit != nil {
			return fmt.Errorf("%w: events recorded without an entry", ErrInvalidRecord)
		}
		return nil
	}

	open := 0
	prevEnd := rec.Entry.Time
	for i, b := range rec.Breaks {
		if !b.Start.After(prevEnd) {
			return fmt.Errorf("%w: break %d starts before the previous event", ErrInvalidRecord, i)
		}
		if b.End == nil {
			if i != len(rec.Breaks)-1 {
				return fmt.Errorf("%w: break %d left open", ErrInvalidRecord, i)
			}
			open++
			continue
		}
		if !b.End.After(b.Start) {
			return fmt.Errorf("%w: break %d ends before it starts", ErrInvalidRecord, i)
		}
		prevEnd = *b.End
	}

	if rec.Lunch != nil {
		if !rec.Lunch.Start.After(rec.Entry.Time) {
			return fmt.Errorf("%w: lunch starts before entry", ErrInvalidRecord)
		}
		if rec.Lunch.End == nil {
			open++
		} else if !rec.Lunch.End.After(rec.Lunch.Start) {
			return fmt.Errorf("%w: lunch ends before it starts", ErrInvalidRecord)
		}
	}

	if open > 1 {
		return fmt.Errorf("%w: break and lunch open at the same time", ErrInvalidRecord)
	}
	if rec.Exit != nil {
		if open > 0 {
			return fmt.Errorf("%w: exit recorded with an open interruption", ErrInvalidRecord)
		}
		if !rec.Exit.Time.After(latestEvent(AttendanceRecord{Entry: rec.Entry, Breaks: rec.Breaks, Lunch: rec.Lunch})) {
			return fmt.Errorf("%w: exit precedes an earlier event", ErrInvalidRecord)
		}
	}
	return nil
}

func guard(rec AttendanceRecord, transition Transition, at time.Time, want WorkdayState) error {
	if at.IsZero() {
		return ErrMissingTimestamp
	}
	if state := StateOf(rec); state != want {
		return &InvalidTransitionError{Transition: transition, From: state}
	}
	if prev := latestEvent(rec); !prev.IsZero() && !at.After(prev) {
		return &TemporalOrderingError{Transition: transition, At: at, Previous: prev}
	}
	return nil
}

func openBreak(rec AttendanceRecord) int {
	for i := len(rec.Breaks) - 1; i >= 0; i-- {
		if rec.Breaks[i].Open() {
			return i
		}
	}
	return -1
}

func latestEvent(rec AttendanceRecord) time.Time {
	var latest time.Time
	bump := func(t time.Time) {
		if t.After(latest) {
			latest = t
		}
	}
	if rec.Entry != nil {
		bump(rec.Entry.Time)
	}
	for _, b := range rec.Breaks {
		bump(b.Start)
		if b.End != nil {
			bump(*b.End)
		}
	}
	if rec.Lunch != nil {
		bump(rec.Lunch.Start)
		if rec.Lunch.End != nil {
			bump(*rec.Lunch.End)
		}
	}
	if rec.Exit != nil {
		bump(rec.Exit.Time)
	}
	return latest
}
