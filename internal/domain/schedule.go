package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses an HH:MM string.
func ParseClockTime(value string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: expected HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: hour must be 00-23", value)
	}
	minute, ok := sexagesimal(parts[1])
	if !ok {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: minute must be 00-59", value)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns the number of minutes since midnight.
func (c ClockTime) Minutes() int { return c.Hour*60 + c.Minute }

// MarshalText renders HH:MM.
func (c ClockTime) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText parses HH:MM.
func (c *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClockTime(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// WeekdaySet is a set of weekdays (0=Sunday..6=Saturday).
type WeekdaySet uint8

// NewWeekdaySet builds a set from the given days.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// ParseWeekdays builds a set from weekday indices, rejecting anything outside 0..6.
func ParseWeekdays(indices []int) (WeekdaySet, error) {
	var s WeekdaySet
	for _, idx := range indices {
		if idx < 0 || idx > 6 {
			return 0, fmt.Errorf("invalid weekday index %d: must be 0 (Sunday) to 6 (Saturday)", idx)
		}
		s |= 1 << uint(idx)
	}
	return s, nil
}

// Contains reports whether d is in the set.
func (s WeekdaySet) Contains(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Indices returns the sorted weekday indices in the set.
func (s WeekdaySet) Indices() []int {
	out := make([]int, 0, 7)
	for d := 0; d < 7; d++ {
		if s.Contains(time.Weekday(d)) {
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}

// ScheduleConfig describes the expected workday used for punctuality scoring.
type ScheduleConfig struct {
	StartTime          ClockTime
	GracePeriodMinutes int
	Workdays           WeekdaySet
}

// DefaultSchedule is applied when no schedule configuration is available.
func DefaultSchedule() ScheduleConfig {
	return ScheduleConfig{
		StartTime:          ClockTime{Hour: 8, Minute: 0},
		GracePeriodMinutes: 15,
		Workdays:           NewWeekdaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
	}
}

// Validate checks the schedule for impossible values.
func (c ScheduleConfig) Validate() error {
	if c.StartTime.Hour < 0 || c.StartTime.Hour > 23 || c.StartTime.Minute < 0 || c.StartTime.Minute > 59 {
		return fmt.Errorf("invalid start time %s", c.StartTime)
	}
	if c.GracePeriodMinutes < 0 {
		return errors.New("grace period must not be negative")
	}
	if c.Workdays>>7 != 0 {
		return errors.New("workday set contains unknown weekdays")
	}
	return nil
}

// OnTimeUntil returns the latest minute-of-day that still counts as on time.
func (c ScheduleConfig) OnTimeUntil() int {
	return c.StartTime.Minutes() + c.GracePeriodMinutes
}
