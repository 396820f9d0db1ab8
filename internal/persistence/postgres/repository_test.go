package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/domain"
)

type fakeRow struct {
	entry, breaks, lunch, exit string
}

func (f fakeRow) Scan(dest ...interface{}) error {
	*dest[0].(*string) = "rec-1"
	*dest[1].(*string) = "user-1"
	*dest[2].(*time.Time) = time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	for i, raw := range []string{f.entry, f.breaks, f.lunch, f.exit} {
		if raw != "" {
			*dest[3+i].(*[]byte) = []byte(raw)
		}
	}
	*dest[7].(*string) = ""
	return nil
}

func TestScanRecordDecodesColumns(t *testing.T) {
	rec, err := scanRecord(fakeRow{
		entry:  `{"time":"2025-03-04T08:00:00Z","device":"kiosk"}`,
		breaks: `[{"start":"2025-03-04T10:00:00Z","end":"2025-03-04T10:15:00Z"}]`,
		lunch:  "null",
	})
	require.NoError(t, err)
	require.Equal(t, domain.NewDate(2025, time.March, 4), rec.Date)
	require.Equal(t, domain.StateWorking, rec.State())
	require.Len(t, rec.Breaks, 1)
	require.Nil(t, rec.Lunch)
}

func TestScanRecordRejectsBrokenStoredRecords(t *testing.T) {
	_, err := scanRecord(fakeRow{exit: `{"time":"2025-03-04T17:00:00Z"}`, breaks: "[]"})
	require.ErrorIs(t, err, domain.ErrInvalidRecord)
	require.ErrorContains(t, err, "stored record rec-1")

	_, err = scanRecord(fakeRow{
		entry:  `{"time":"2025-03-04T08:00:00Z"}`,
		breaks: `[{"start":"2025-03-04T10:00:00Z"}]`,
		exit:   `{"time":"2025-03-04T17:00:00Z"}`,
	})
	require.ErrorIs(t, err, domain.ErrInvalidRecord)
}
