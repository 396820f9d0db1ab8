package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/stats"
)

var weekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var stateOrder = []domain.WorkdayState{
	domain.StateNotStarted,
	domain.StateWorking,
	domain.StateOnBreak,
	domain.StateAtLunch,
	domain.StateFinished,
}

// StatsReport is the JSON shape of `attendctl stats --format json`.
type StatsReport struct {
	Records int           `json:"records"`
	Start   domain.Date   `json:"start"`
	End     domain.Date   `json:"end"`
	Summary stats.Summary `json:"summary"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <records.json>",
		Short: "Summarise worked hours, punctuality and chart buckets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runStats(opts *RootOptions, path string, out, errOut io.Writer) error {
	records, err := readRecords(path)
	if err != nil {
		return err
	}
	schedule, err := opts.schedule()
	if err != nil {
		return err
	}

	engine := stats.NewEngine(
		stats.WithLocation(opts.location()),
		stats.WithLogger(log.New(errOut, "warning: ", 0)),
	)
	start, end := dateSpan(records)
	report := StatsReport{
		Records: len(records),
		Start:   start,
		End:     end,
		Summary: engine.Summarize(records, schedule),
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	writeStatsText(out, report)
	return nil
}

func writeStatsText(w io.Writer, r StatsReport) {
	s := r.Summary
	fmt.Fprintf(w, "records: %d (%s..%s)\n", r.Records, r.Start, r.End)
	fmt.Fprintf(w, "days worked: %d\n", s.Totals.DaysWorked)
	fmt.Fprintf(w, "total hours: %d\n", s.Totals.TotalHoursWorked)
	fmt.Fprintf(w, "average hours/day: %.2f\n", s.Totals.AverageHoursPerDay)
	fmt.Fprintf(w, "punctuality: %d%% (%d on time, %d late, %d eligible)\n",
		s.Punctuality.Score, s.Punctuality.OnTime, s.Punctuality.Late, s.Punctuality.Eligible)

	fmt.Fprintf(w, "weekday load (%% of %dh):\n", stats.DailyCapMinutes/60)
	for i, pct := range s.WeeklyBuckets {
		fmt.Fprintf(w, "  %s %.1f\n", weekdayNames[i], pct)
	}
	fmt.Fprintf(w, "week-of-month load (%% of %dh):\n", stats.WeeklyCapMinutes/60)
	for i, pct := range s.MonthlyBuckets {
		fmt.Fprintf(w, "  W%d %.1f\n", i+1, pct)
	}

	fmt.Fprintln(w, "states:")
	for _, state := range stateOrder {
		if n := s.StateCounts[state]; n > 0 {
			fmt.Fprintf(w, "  %s %d\n", state, n)
		}
	}
}
