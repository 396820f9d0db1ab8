package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"example.com/attendance/internal/domain"
)

// HoursResult is one checked duration.
type HoursResult struct {
	Input     string `json:"input"`
	Minutes   int    `json:"minutes,omitempty"`
	Canonical string `json:"canonical,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewHoursCommand creates the hours command.
func NewHoursCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hours <H:MM[:SS]>...",
		Short: "Check hoursWorked values and show their canonical form",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHours(rootOpts, args, cmd.OutOrStdout())
		},
	}
}

func runHours(opts *RootOptions, values []string, out io.Writer) error {
	results := make([]HoursResult, 0, len(values))
	invalid := 0
	for _, value := range values {
		minutes, err := domain.ParseHoursWorked(value)
		if err != nil {
			invalid++
			results = append(results, HoursResult{Input: value, Error: err.Error()})
			continue
		}
		results = append(results, HoursResult{Input: value, Minutes: minutes, Canonical: domain.FormatHoursWorked(minutes)})
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(out, "%s => error: %s\n", r.Input, r.Error)
				continue
			}
			fmt.Fprintf(out, "%s => %d min (%s)\n", r.Input, r.Minutes, r.Canonical)
		}
	}

	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d values rejected", invalid, len(values)))
	}
	return nil
}
