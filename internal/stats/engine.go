// Package stats reduces attendance records into totals, a punctuality score and chart buckets.
package stats

import (
	"log"
	"math"
	"time"

	"example.com/attendance/internal/domain"
)

// Bucket caps, in minutes.
const (
	DailyCapMinutes  = 12 * 60
	WeeklyCapMinutes = 50 * 60
)

// Totals aggregates worked time over a record set.
type Totals struct {
	TotalHoursWorked   int     `json:"total_hours_worked"`
	DaysWorked         int     `json:"days_worked"`
	AverageHoursPerDay float64 `json:"average_hours_per_day"`
}

// PunctualityBreakdown reports the counts behind a punctuality score.
type PunctualityBreakdown struct {
	Score    int `json:"score"`
	Eligible int `json:"eligible"`
	OnTime   int `json:"on_time"`
	Late     int `json:"late"`
}

// Summary bundles every aggregate shown on the attendance dashboard.
type Summary struct {
	Totals         Totals                      `json:"totals"`
	Punctuality    PunctualityBreakdown        `json:"punctuality"`
	WeeklyBuckets  [7]float64                  `json:"weekly_buckets"`
	MonthlyBuckets [5]float64                  `json:"monthly_buckets"`
	StateCounts    map[domain.WorkdayState]int `json:"state_counts"`
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLogger overrides the logger used for unparsable hours warnings.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLocation sets the zone in which entry timestamps are read for weekday
// and time-of-day. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// Engine computes statistics. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	logger   *log.Logger
	location *time.Location
}

// NewEngine constructs an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:   log.New(log.Writer(), "[stats] ", log.LstdFlags|log.Lshortfile),
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Totals sums hoursWorked. Records whose hours do not parse are left out of
// the sum but still count as a worked day.
func (e *Engine) Totals(records []domain.AttendanceRecord) Totals {
	sum := 0
	for _, rec := range records {
		sum += e.minutes(rec)
	}
	totals := Totals{
		TotalHoursWorked: sum / 60,
		DaysWorked:       len(records),
	}
	if totals.DaysWorked > 0 {
		totals.AverageHoursPerDay = float64(sum) / 60 / float64(totals.DaysWorked)
	}
	return totals
}

// Punctuality returns the percentage of eligible entries made on time.
func (e *Engine) Punctuality(records []domain.AttendanceRecord, schedule domain.ScheduleConfig) int {
	return e.PunctualityBreakdown(records, schedule).Score
}

// PunctualityBreakdown scores entries whose weekday is a scheduled workday.
// With nothing eligible the score is 100.
func (e *Engine) PunctualityBreakdown(records []domain.AttendanceRecord, schedule domain.ScheduleConfig) PunctualityBreakdown {
	var out PunctualityBreakdown
	deadline := schedule.OnTimeUntil() * 60
	for _, rec := range records {
		if rec.Entry == nil {
			continue
		}
		local := rec.Entry.Time.In(e.location)
		if !schedule.Workdays.Contains(local.Weekday()) {
			continue
		}
		out.Eligible++
		if secondOfDay(local) <= deadline {
			out.OnTime++
		} else {
			out.Late++
		}
	}
	if out.Eligible == 0 {
		out.Score = 100
		return out
	}
	out.Score = int(math.Round(float64(out.OnTime) / float64(out.Eligible) * 100))
	return out
}

// WeeklyBuckets sums worked time per weekday of the record date, Monday first,
// as a percentage of a 12 hour day.
func (e *Engine) WeeklyBuckets(records []domain.AttendanceRecord) [7]float64 {
	var minutes [7]int
	for _, rec := range records {
		idx := (int(rec.Date.Weekday()) + 6) % 7
		minutes[idx] += e.minutes(rec)
	}
	var out [7]float64
	for i, m := range minutes {
		out[i] = percentOf(m, DailyCapMinutes)
	}
	return out
}

// MonthlyBuckets sums worked time per seven-day slice of the month, as a
// percentage of a 50 hour week. Days 29 to 31 fall into the fifth bucket.
func (e *Engine) MonthlyBuckets(records []domain.AttendanceRecord) [5]float64 {
	var minutes [5]int
	for _, rec := range records {
		idx := (rec.Date.Day - 1) / 7
		if idx < 0 {
			idx = 0
		}
		if idx > 4 {
			idx = 4
		}
		minutes[idx] += e.minutes(rec)
	}
	var out [5]float64
	for i, m := range minutes {
		out[i] = percentOf(m, WeeklyCapMinutes)
	}
	return out
}

// Summarize computes every aggregate in one pass over the dashboard's needs.
func (e *Engine) Summarize(records []domain.AttendanceRecord, schedule domain.ScheduleConfig) Summary {
	counts := make(map[domain.WorkdayState]int)
	for _, rec := range records {
		counts[domain.StateOf(rec)]++
	}
	return Summary{
		Totals:         e.Totals(records),
		Punctuality:    e.PunctualityBreakdown(records, schedule),
		WeeklyBuckets:  e.WeeklyBuckets(records),
		MonthlyBuckets: e.MonthlyBuckets(records),
		StateCounts:    counts,
	}
}

func (e *Engine) minutes(rec domain.AttendanceRecord) int {
	// Open days have no hours yet and count as zero. A closed day without
	// hours means the exit write lost its duration.
	if rec.HoursWorked == "" {
		if rec.Exit != nil {
			hoursMissing.Inc()
			e.logger.Printf("record %s is closed but has no hours worked", rec.ID)
		}
		return 0
	}
	m, err := domain.ParseHoursWorked(rec.HoursWorked)
	if err != nil {
		hoursSkipped.Inc()
		e.logger.Printf("skipping hours for record %s: %v", rec.ID, err)
		return 0
	}
	return m
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func percentOf(minutes, capMinutes int) float64 {
	pct := float64(minutes) / float64(capMinutes) * 100
	return math.Max(0, math.Min(100, pct))
}
