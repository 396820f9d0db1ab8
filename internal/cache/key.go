package cache

import (
	"fmt"
	"strings"

	"example.com/attendance/internal/access"
	"example.com/attendance/internal/domain"
)

// Namespace prefixes every key written by the query cache. Bumping the version
// orphans entries written by older payload layouts.
const Namespace = "attendance:v1:"

// FilterKind names the date window a cached result set was fetched for.
type FilterKind string

const (
	FilterToday FilterKind = "today"
	FilterWeek  FilterKind = "week"
	FilterMonth FilterKind = "month"
	FilterRange FilterKind = "range"
)

// ParseFilterKind validates a filter name.
func ParseFilterKind(value string) (FilterKind, error) {
	switch k := FilterKind(strings.ToLower(strings.TrimSpace(value))); k {
	case FilterToday, FilterWeek, FilterMonth, FilterRange:
		return k, nil
	}
	return "", fmt.Errorf("unknown filter %q", value)
}

// Key identifies one cached result set. Scope is always part of the key so a
// result fetched under one visibility can never be served under another.
type Key struct {
	Filter FilterKind
	Start  domain.Date
	End    domain.Date
	UserID string
	Scope  access.Scope
}

func (k Key) String() string {
	return fmt.Sprintf("%s%s:%s:%s:%s:%s", Namespace, k.Filter, k.Start, k.End, k.UserID, k.Scope)
}
