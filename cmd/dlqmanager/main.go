package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"example.com/attendance/internal/config"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/outbox"
)

type options struct {
	once        bool
	batchSize   int
	interval    time.Duration
	maxRetries  int
	baseDelay   time.Duration
	transitions []string
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("ignoring .env: %v", err)
	}
	if err := newCommand(config.Load()).Execute(); err != nil {
		log.Printf("dlq manager: %v", err)
		os.Exit(1)
	}
}

func newCommand(cfg config.Config) *cobra.Command {
	opts := options{
		batchSize:  cfg.DLQBatchSize,
		interval:   cfg.DLQPollInterval,
		maxRetries: cfg.DLQMaxRetries,
		baseDelay:  cfg.DLQBaseDelay,
	}

	cmd := &cobra.Command{
		Use:   "dlqmanager",
		Short: "Replay dead-lettered attendance transitions into the outbox",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range opts.transitions {
				if _, err := domain.ParseTransition(name); err != nil {
					return err
				}
			}
			if opts.batchSize <= 0 {
				return fmt.Errorf("--batch must be positive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, opts)
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&opts.once, "once", false, "run a single replay pass and exit (for cron jobs)")
	cmd.Flags().IntVar(&opts.batchSize, "batch", opts.batchSize, "entries per pass (DLQ_BATCH_SIZE)")
	cmd.Flags().DurationVar(&opts.interval, "interval", opts.interval, "pause between passes (DLQ_POLL_INTERVAL)")
	cmd.Flags().IntVar(&opts.maxRetries, "max-retries", opts.maxRetries, "requeue attempts before quarantine (DLQ_MAX_RETRIES)")
	cmd.Flags().DurationVar(&opts.baseDelay, "base-delay", opts.baseDelay, "first retry backoff (DLQ_BASE_DELAY)")
	cmd.Flags().StringSliceVar(&opts.transitions, "transition", nil, "only replay these transitions, e.g. --transition clock_out")
	return cmd
}

func run(ctx context.Context, cfg config.Config, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, opts.maxRetries, opts.baseDelay, outbox.WithTransitions(opts.transitions...))

	if opts.once {
		report, err := manager.RunOnce(ctx, opts.batchSize)
		log.Printf("dlq pass: %s", report)
		return err
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Printf("dlq manager metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics server shutdown error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	log.Printf("DLQ manager started (interval=%s, maxRetries=%d, transitions=%v)", opts.interval, opts.maxRetries, opts.transitions)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			log.Println("dlq manager received shutdown signal")
			return nil
		case <-ticker.C:
			report, err := manager.RunOnce(ctx, opts.batchSize)
			if err != nil {
				log.Printf("dlq manager error: %v", err)
			}
			if report.Requeued+report.Retried+report.Quarantined > 0 {
				log.Printf("dlq pass: %s", report)
			}
		}
	}
}
