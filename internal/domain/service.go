// Package domain defines the workday lifecycle rules for the attendance service.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// RecordRepository captures persistence operations for attendance records.
// Get and FindByUserAndDate return (nil, nil) when nothing matches.
type RecordRepository interface {
	Get(ctx context.Context, recordID string) (*AttendanceRecord, error)
	FindByUserAndDate(ctx context.Context, userID string, date Date) (*AttendanceRecord, error)
	Save(ctx context.Context, record AttendanceRecord, event TransitionEvent) error
}

// TransitionEvent describes an accepted transition, recorded alongside the record.
type TransitionEvent struct {
	RecordID   string
	UserID     string
	Date       Date
	Transition Transition
	From       WorkdayState
	To         WorkdayState
	At         time.Time
}

// ServiceOption configures optional behaviour for the Service.
type ServiceOption func(*Service)

// WithClock overrides the clock used when a transition arrives without a timestamp.
func WithClock(clock clockwork.Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithIDGenerator overrides how new record identifiers are minted.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		s.newID = fn
	}
}

// Service orchestrates workday transitions over a repository.
type Service struct {
	repo  RecordRepository
	clock clockwork.Clock
	newID func() string
}

// NewService constructs a Service.
func NewService(repo RecordRepository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:  repo,
		clock: clockwork.NewRealClock(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClockInInput captures a clock-in request.
type ClockInInput struct {
	UserID   string
	Date     Date
	At       time.Time
	Location *Location
	Device   string
}

// TransitionInput captures a transition on an existing record.
type TransitionInput struct {
	RecordID    string
	UserID      string
	Transition  Transition
	At          time.Time
	HoursWorked string
}

// ClockIn creates the day's record for the user, or starts an existing
// not-yet-started one. A second clock-in on the same day is rejected.
func (s *Service) ClockIn(ctx context.Context, input ClockInInput) (*AttendanceRecord, error) {
	at := s.timestamp(input.At)
	date := input.Date
	if date.IsZero() {
		date = DateOf(at)
	}

	existing, err := s.repo.FindByUserAndDate(ctx, input.UserID, date)
	if err != nil {
		return nil, err
	}

	record := AttendanceRecord{ID: s.newID(), UserID: input.UserID, Date: date}
	if existing != nil {
		record = *existing
	}

	updated, err := ClockIn(record, at, input.Location, strings.TrimSpace(input.Device))
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, record, updated, TransitionClockIn, at); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Transition applies a transition to the user's own record.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (*AttendanceRecord, error) {
	record, err := s.GetRecord(ctx, input.RecordID)
	if err != nil {
		return nil, err
	}
	if record.UserID != input.UserID {
		return nil, ErrForbidden
	}

	at := s.timestamp(input.At)
	updated, err := Apply(*record, Command{Transition: input.Transition, At: at})
	if err != nil {
		return nil, err
	}

	if input.Transition == TransitionClockOut {
		hours, err := hoursForClockOut(updated, input.HoursWorked)
		if err != nil {
			return nil, err
		}
		updated.HoursWorked = hours
	}

	if err := s.save(ctx, *record, updated, input.Transition, at); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetRecord fetches a record by ID.
func (s *Service) GetRecord(ctx context.Context, recordID string) (*AttendanceRecord, error) {
	record, err := s.repo.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

func (s *Service) save(ctx context.Context, before, after AttendanceRecord, transition Transition, at time.Time) error {
	return s.repo.Save(ctx, after, TransitionEvent{
		RecordID:   after.ID,
		UserID:     after.UserID,
		Date:       after.Date,
		Transition: transition,
		From:       StateOf(before),
		To:         StateOf(after),
		At:         at,
	})
}

func (s *Service) timestamp(at time.Time) time.Time {
	if at.IsZero() {
		return s.clock.Now()
	}
	return at
}

// hoursForClockOut keeps a caller-supplied duration when it parses, otherwise
// derives one from the record's own timestamps.
func hoursForClockOut(record AttendanceRecord, supplied string) (string, error) {
	if strings.TrimSpace(supplied) != "" {
		if _, err := ParseHoursWorked(supplied); err != nil {
			return "", err
		}
		return strings.TrimSpace(supplied), nil
	}
	worked, _ := NetWorked(record)
	return FormatHoursWorked(int(worked / time.Minute)), nil
}
