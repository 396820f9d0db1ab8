package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"example.com/attendance/internal/cache"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage attendance query caches",
	}
	cmd.AddCommand(newCachePurgeCommand())
	return cmd
}

type purgeOptions struct {
	path    string
	url     string
	token   string
	reason  string
	timeout time.Duration
}

func newCachePurgeCommand() *cobra.Command {
	opts := purgeOptions{}
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop every cached query result from a local SQLite cache or a running API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePurge(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.path, "path", "", "SQLite cache file (CACHE_PATH)")
	cmd.Flags().StringVar(&opts.url, "url", "", "API purge endpoint, e.g. http://localhost:8080/internal/cache/invalidate")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token with attendance:admin scope")
	cmd.Flags().StringVar(&opts.reason, "reason", "manual purge", "reason recorded in the service log")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "HTTP timeout")
	return cmd
}

func runCachePurge(ctx context.Context, opts purgeOptions, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.path == "" && opts.url == "" {
		return NewExitError(ExitCommandError, "one of --path or --url is required")
	}

	if opts.path != "" {
		storage, err := cache.OpenSQLite(opts.path)
		if err != nil {
			return WrapExitError(ExitCommandError, "open cache", err)
		}
		defer storage.Close()

		qc := cache.New(storage, cache.WithLogger(log.New(errOut, "cache: ", 0)))
		if err := qc.InvalidateAll(ctx); err != nil {
			return WrapExitError(ExitFailure, "purge local cache", err)
		}
		fmt.Fprintf(out, "purged local cache %s\n", opts.path)
	}

	if opts.url != "" {
		inv := cache.NewHTTPInvalidator(opts.url, opts.token, opts.timeout)
		if err := inv.Invalidate(ctx, opts.reason); err != nil {
			return WrapExitError(ExitFailure, "purge remote cache", err)
		}
		fmt.Fprintf(out, "purged remote cache %s\n", opts.url)
	}
	return nil
}
