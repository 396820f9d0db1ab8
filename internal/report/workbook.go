// Package report renders attendance records and their summary as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/stats"
)

const (
	RecordsSheet = "Records"
	SummarySheet = "Summary"
)

var recordHeader = []interface{}{"Date", "User", "Entry", "Exit", "Breaks", "Lunch", "Hours worked", "State"}

var weekdayLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// WriteWorkbook writes records and summary to w. Timestamps are rendered in loc.
func WriteWorkbook(w io.Writer, records []domain.AttendanceRecord, summary stats.Summary, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	if err := file.SetSheetName(file.GetSheetName(0), RecordsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRecords(file, records, loc); err != nil {
		return err
	}
	if _, err := file.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := writeSummary(file, summary); err != nil {
		return err
	}
	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRecords(file *excelize.File, records []domain.AttendanceRecord, loc *time.Location) error {
	rows := make([][]interface{}, 0, len(records)+1)
	rows = append(rows, recordHeader)
	for _, rec := range records {
		rows = append(rows, []interface{}{
			rec.Date.String(),
			rec.UserID,
			entryTime(rec, loc),
			exitTime(rec, loc),
			formatBreaks(rec.Breaks, loc),
			formatLunch(rec.Lunch, loc),
			rec.HoursWorked,
			string(domain.StateOf(rec)),
		})
	}
	if err := setRows(file, RecordsSheet, rows); err != nil {
		return err
	}
	return file.SetColWidth(RecordsSheet, "A", "H", 16)
}

func writeSummary(file *excelize.File, summary stats.Summary) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Days worked", summary.Totals.DaysWorked},
		{"Total hours worked", summary.Totals.TotalHoursWorked},
		{"Average hours per day", summary.Totals.AverageHoursPerDay},
		{"Punctuality (%)", summary.Punctuality.Score},
		{"On time", summary.Punctuality.OnTime},
		{"Late", summary.Punctuality.Late},
		{},
		{"Weekday", "Load (% of 12h)"},
	}
	for i, label := range weekdayLabels {
		rows = append(rows, []interface{}{label, summary.WeeklyBuckets[i]})
	}
	rows = append(rows, []interface{}{}, []interface{}{"Week of month", "Load (% of 50h)"})
	for i, value := range summary.MonthlyBuckets {
		rows = append(rows, []interface{}{fmt.Sprintf("Week %d", i+1), value})
	}
	if err := setRows(file, SummarySheet, rows); err != nil {
		return err
	}
	return file.SetColWidth(SummarySheet, "A", "B", 24)
}

func setRows(file *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func entryTime(rec domain.AttendanceRecord, loc *time.Location) string {
	if rec.Entry == nil {
		return ""
	}
	return clock(rec.Entry.Time, loc)
}

func exitTime(rec domain.AttendanceRecord, loc *time.Location) string {
	if rec.Exit == nil {
		return ""
	}
	return clock(rec.Exit.Time, loc)
}

func formatBreaks(breaks []domain.Interval, loc *time.Location) string {
	parts := make([]string, 0, len(breaks))
	for _, b := range breaks {
		parts = append(parts, formatInterval(b, loc))
	}
	return strings.Join(parts, ", ")
}

func formatLunch(lunch *domain.Interval, loc *time.Location) string {
	if lunch == nil {
		return ""
	}
	return formatInterval(*lunch, loc)
}

func formatInterval(i domain.Interval, loc *time.Location) string {
	if i.End == nil {
		return clock(i.Start, loc) + "-"
	}
	return clock(i.Start, loc) + "-" + clock(*i.End, loc)
}

func clock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}
