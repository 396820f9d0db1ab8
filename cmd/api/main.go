package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/attendance/internal/access"
	"example.com/attendance/internal/api"
	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/cache"
	"example.com/attendance/internal/config"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/outbox"
	persistence "example.com/attendance/internal/persistence/postgres"
	"example.com/attendance/internal/query"
	httptransport "example.com/attendance/internal/transport/http"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("ignoring .env: %v", err)
	}
	cfg := config.Load()
	location := cfg.Location()
	schedule := config.LoadSchedule(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	go dispatcher.Start(ctx)

	var storage cache.Storage = cache.NewMemoryStorage()
	if cfg.CachePath != "" {
		sqlite, err := cache.OpenSQLite(cfg.CachePath)
		if err != nil {
			log.Fatalf("failed to open cache at %s: %v", cfg.CachePath, err)
		}
		defer sqlite.Close()
		storage = sqlite
	}
	queryCache := cache.New(storage, cache.WithTTL(cfg.CacheTTL))
	loader := query.NewLoader(repo, queryCache)
	watcher := access.NewWatcher([]access.ChangeFunc{cache.OnScopeChange(queryCache)})

	service := domain.NewService(repo)

	handler := api.NewHandler(service, loader,
		api.WithWatcher(watcher),
		api.WithSchedule(schedule),
		api.WithLocation(location),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.Chain(mux,
			httptransport.Recover(nil),
			httptransport.RequestLogger(nil),
			httptransport.CORS(cfg.CORSOrigins),
			authMiddleware.Wrap,
		))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("attendance-service listening on %s (tz=%s, on time until %s+%dm)",
			cfg.HTTPAddress, location, schedule.StartTime, schedule.GracePeriodMinutes)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Wait()
}
