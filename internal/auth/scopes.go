package auth

// Known OAuth scopes used by the attendance services.
const (
	ScopeAttendanceReadAll = "attendance:read_all"
	ScopeAttendanceReadOwn = "attendance:read_own"
	ScopeAttendanceWrite   = "attendance:write"
	ScopeAttendanceAdmin   = "attendance:admin"
)
