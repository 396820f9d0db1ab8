package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"example.com/attendance/internal/report"
	"example.com/attendance/internal/stats"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <records.json>",
		Short: "Write records and their summary to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, args[0], output, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "attendance.xlsx", "workbook path")
	return cmd
}

func runExport(opts *RootOptions, path, output string, out, errOut io.Writer) error {
	records, err := readRecords(path)
	if err != nil {
		return err
	}
	schedule, err := opts.schedule()
	if err != nil {
		return err
	}

	loc := opts.location()
	engine := stats.NewEngine(stats.WithLocation(loc), stats.WithLogger(log.New(errOut, "warning: ", 0)))
	summary := engine.Summarize(records, schedule)

	f, err := os.Create(output)
	if err != nil {
		return WrapExitError(ExitCommandError, "create workbook", err)
	}
	if err := report.WriteWorkbook(f, records, summary, loc); err != nil {
		_ = f.Close()
		return WrapExitError(ExitFailure, "write workbook", err)
	}
	if err := f.Close(); err != nil {
		return WrapExitError(ExitFailure, "close workbook", err)
	}

	fmt.Fprintf(out, "wrote %d records to %s\n", len(records), output)
	return nil
}
