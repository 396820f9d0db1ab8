// Package access turns a permission snapshot into the set of attendance records a user may query.
package access

import "fmt"

// Permissions is the snapshot of attendance capabilities held by the acting user.
type Permissions struct {
	ViewAll bool
	ViewOwn bool
}

// Scope is the visibility granted by a permission snapshot.
type Scope string

const (
	ScopeAll  Scope = "all"
	ScopeOwn  Scope = "own"
	ScopeNone Scope = "none"
)

// Query caps applied by the remote store for each scope.
const (
	AllRecordsLimit = 200
	OwnRecordsLimit = 100
)

// ResolveScope picks ALL when the view-all capability is present, OWN when only
// view-own is present and NONE otherwise. NONE is a valid outcome, not an error.
func ResolveScope(p Permissions) Scope {
	switch {
	case p.ViewAll:
		return ScopeAll
	case p.ViewOwn:
		return ScopeOwn
	default:
		return ScopeNone
	}
}

// Limit returns the maximum number of records a query in this scope may return.
func (s Scope) Limit() int {
	switch s {
	case ScopeAll:
		return AllRecordsLimit
	case ScopeOwn:
		return OwnRecordsLimit
	default:
		return 0
	}
}

// OwnerFilter returns the owner restriction for a query issued by userID, or
// "" when the scope is unrestricted.
func (s Scope) OwnerFilter(userID string) string {
	if s == ScopeOwn {
		return userID
	}
	return ""
}

// ParseScope validates a scope name.
func ParseScope(value string) (Scope, error) {
	switch s := Scope(value); s {
	case ScopeAll, ScopeOwn, ScopeNone:
		return s, nil
	}
	return "", fmt.Errorf("unknown scope %q", value)
}
