package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"example.com/attendance/internal/domain"
)

// readRecords loads a JSON array of attendance records, as returned by
// GET /v1/attendance items, and rejects structurally broken ones.
func readRecords(path string) ([]domain.AttendanceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read records", err)
	}
	var records []domain.AttendanceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, WrapExitError(ExitCommandError, "decode records", err)
	}
	for i, rec := range records {
		if err := domain.Validate(rec); err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("record %d (%s)", i, rec.ID), err)
		}
	}
	return records, nil
}

// dateSpan returns the earliest and latest record dates.
func dateSpan(records []domain.AttendanceRecord) (domain.Date, domain.Date) {
	var first, last domain.Date
	for i, rec := range records {
		if i == 0 || rec.Date.Before(first) {
			first = rec.Date
		}
		if i == 0 || rec.Date.After(last) {
			last = rec.Date
		}
	}
	return first, last
}
