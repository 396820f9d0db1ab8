package domain

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a local calendar day. It carries no time zone and is compared as a
// (year, month, day) triple so that bucketing never shifts across midnight.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date, normalising out-of-range values the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t as seen in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return d.midday().Weekday()
}

// AddDays returns the date n days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(d.midday().AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(int(d.Month) - int(other.Month))
	default:
		return sign(d.Day - other.Day)
	}
}

// Before reports whether d precedes other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// After reports whether d follows other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// MarshalText renders the date as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText parses YYYY-MM-DD; an empty value leaves the zero Date.
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) midday() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

// Location is the geographic position captured at clock-in.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Entry marks the start of a workday.
type Entry struct {
	Time     time.Time `json:"time"`
	Location *Location `json:"location,omitempty"`
	Device   string    `json:"device,omitempty"`
}

// Interval is a break or lunch period. A nil End means it is still open.
type Interval struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Open reports whether the interval has not been closed yet.
func (i Interval) Open() bool { return i.End == nil }

// Exit marks the end of a workday.
type Exit struct {
	Time time.Time `json:"time"`
}

// WorkdayState is the lifecycle position of a record, always derived from its fields.
type WorkdayState string

const (
	StateNotStarted WorkdayState = "not_started"
	StateWorking    WorkdayState = "working"
	StateOnBreak    WorkdayState = "on_break"
	StateAtLunch    WorkdayState = "at_lunch"
	StateFinished   WorkdayState = "finished"
)

// AttendanceRecord is one workday for one user.
type AttendanceRecord struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Date        Date       `json:"date"`
	Entry       *Entry     `json:"entry,omitempty"`
	Breaks      []Interval `json:"breaks,omitempty"`
	Lunch       *Interval  `json:"lunch,omitempty"`
	Exit        *Exit      `json:"exit,omitempty"`
	HoursWorked string     `json:"hours_worked,omitempty"`
}

// State derives the record's lifecycle state.
func (r AttendanceRecord) State() WorkdayState { return StateOf(r) }

// Clone returns a deep copy so transitions never alias the caller's record.
func (r AttendanceRecord) Clone() AttendanceRecord {
	out := r
	if r.Entry != nil {
		entry := *r.Entry
		if r.Entry.Location != nil {
			loc := *r.Entry.Location
			entry.Location = &loc
		}
		out.Entry = &entry
	}
	if r.Breaks != nil {
		out.Breaks = make([]Interval, len(r.Breaks))
		for i, b := range r.Breaks {
			out.Breaks[i] = b.clone()
		}
	}
	if r.Lunch != nil {
		lunch := r.Lunch.clone()
		out.Lunch = &lunch
	}
	if r.Exit != nil {
		exit := *r.Exit
		out.Exit = &exit
	}
	return out
}

func (i Interval) clone() Interval {
	out := Interval{Start: i.Start}
	if i.End != nil {
		end := *i.End
		out.End = &end
	}
	return out
}
