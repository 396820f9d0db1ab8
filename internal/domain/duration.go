package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxHours keeps hours*60+59 within int.
const maxHours = math.MaxInt/60 - 1

// ParseHoursWorked converts an H:MM or H:MM:SS string into whole minutes.
// The hour component may be any non-negative integer; minutes and seconds must be
// two digits in 00-59. Seconds are truncated.
func ParseHoursWorked(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, &ParseError{Value: value, Reason: "empty value"}
	}

	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, &ParseError{Value: value, Reason: "expected H:MM or H:MM:SS"}
	}

	if !allDigits(parts[0]) {
		return 0, &ParseError{Value: value, Reason: "hours must be a non-negative integer"}
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours > maxHours {
		return 0, &ParseError{Value: value, Reason: "hours out of range"}
	}

	minutes, ok := sexagesimal(parts[1])
	if !ok {
		return 0, &ParseError{Value: value, Reason: "minutes must be two digits between 00 and 59"}
	}
	if len(parts) == 3 {
		if _, ok := sexagesimal(parts[2]); !ok {
			return 0, &ParseError{Value: value, Reason: "seconds must be two digits between 00 and 59"}
		}
	}

	return hours*60 + minutes, nil
}

// FormatHoursWorked renders minutes in the canonical H:MM:SS form accepted by ParseHoursWorked.
func FormatHoursWorked(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%d:%02d:00", minutes/60, minutes%60)
}

func sexagesimal(part string) (int, bool) {
	if len(part) != 2 || !allDigits(part) {
		return 0, false
	}
	v := int(part[0]-'0')*10 + int(part[1]-'0')
	return v, v < 60
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
