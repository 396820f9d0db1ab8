// Package cli implements attendctl, the offline companion to the attendance service:
// statistics and XLSX exports over record dumps, duration checks, cache purges and dev tokens.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"example.com/attendance/internal/config"
	"example.com/attendance/internal/domain"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format       string // "json" | "text"
	Timezone     string
	SchedulePath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for attendctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "attendctl",
		Short: "Attendance records toolbox",
		Long:  "Compute attendance statistics, export workbooks and manage the query cache.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if _, err := time.LoadLocation(opts.Timezone); err != nil {
				return WrapExitError(ExitCommandError, "invalid timezone", err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Timezone, "tz", "UTC", "IANA zone used for weekdays and times of day")
	cmd.PersistentFlags().StringVar(&opts.SchedulePath, "schedule", "", "YAML workday schedule (defaults to 08:00 +15m, Mon-Fri)")

	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewHoursCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) location() *time.Location {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// schedule reads the --schedule file. Unlike the service, a broken file is an error here.
func (o *RootOptions) schedule() (domain.ScheduleConfig, error) {
	if o.SchedulePath == "" {
		return domain.DefaultSchedule(), nil
	}
	data, err := os.ReadFile(o.SchedulePath)
	if err != nil {
		return domain.ScheduleConfig{}, WrapExitError(ExitCommandError, "read schedule", err)
	}
	schedule, err := config.ParseSchedule(data)
	if err != nil {
		return domain.ScheduleConfig{}, WrapExitError(ExitCommandError, "parse schedule", err)
	}
	return schedule, nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
