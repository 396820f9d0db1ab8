package query

import (
	"fmt"
	"time"

	"example.com/attendance/internal/cache"
	"example.com/attendance/internal/domain"
)

// Filter is a resolved, inclusive date window.
type Filter struct {
	Kind  cache.FilterKind
	Start domain.Date
	End   domain.Date
}

// ResolveFilter turns a filter kind into concrete dates relative to now.
// Weeks run Monday to Sunday. Range filters use start and end as given.
func ResolveFilter(kind cache.FilterKind, now time.Time, start, end domain.Date) (Filter, error) {
	today := domain.DateOf(now)
	switch kind {
	case cache.FilterToday:
		return Filter{Kind: kind, Start: today, End: today}, nil
	case cache.FilterWeek:
		monday := today.AddDays(-((int(today.Weekday()) + 6) % 7))
		return Filter{Kind: kind, Start: monday, End: monday.AddDays(6)}, nil
	case cache.FilterMonth:
		first := domain.NewDate(today.Year, today.Month, 1)
		last := domain.NewDate(today.Year, today.Month+1, 0)
		return Filter{Kind: kind, Start: first, End: last}, nil
	case cache.FilterRange:
		if start.IsZero() || end.IsZero() {
			return Filter{}, fmt.Errorf("range filter requires start and end dates")
		}
		if end.Before(start) {
			return Filter{}, fmt.Errorf("range end %s precedes start %s", end, start)
		}
		return Filter{Kind: kind, Start: start, End: end}, nil
	default:
		return Filter{}, fmt.Errorf("unknown filter %q", kind)
	}
}

// Contains reports whether d falls inside the window.
func (f Filter) Contains(d domain.Date) bool {
	return !d.Before(f.Start) && !d.After(f.End)
}
