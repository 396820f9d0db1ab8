package outbox

const attendanceTransitionedSchema = `{
  "type": "object",
  "title": "AttendanceTransitioned",
  "properties": {
    "record_id": {"type": "string"},
    "user_id": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "transition": {"type": "string", "enum": ["clock_in", "break_start", "break_end", "lunch_start", "lunch_end", "clock_out"]},
    "from_state": {"type": "string"},
    "to_state": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "hours_worked": {"type": "string"}
  },
  "required": ["record_id", "user_id", "date", "transition", "from_state", "to_state", "occurred_at"],
  "additionalProperties": false
}`
