package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Quarantine causes.
const (
	causeRetryLimit    = "retry_limit"
	causeUndecodable   = "undecodable"
	causeUnknownEvent  = "unknown_event"
	causeMissingSchema = "missing_schema"
)

var (
	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "dlq",
		Name:      "transitions_requeued_total",
		Help:      "Dead-lettered attendance transitions reinserted into the outbox.",
	}, []string{"transition"})

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "dlq",
		Name:      "transitions_quarantined_total",
		Help:      "Dead-lettered entries set aside for manual review, by transition and cause.",
	}, []string{"transition", "cause"})

	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "dlq",
		Name:      "retry_scheduled_total",
		Help:      "Failed requeues rescheduled with backoff.",
	}, []string{"transition"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attendance_service",
		Subsystem: "dlq",
		Name:      "queued_transitions",
		Help:      "Entries waiting in the DLQ, by transition.",
	}, []string{"transition"})
)

func init() {
	prometheus.MustRegister(dlqRequeuedCounter, dlqQuarantinedCounter, dlqRetryCounter, dlqBacklogGauge)
}

func recordDLQRequeued(entry dlqEntry) {
	dlqRequeuedCounter.WithLabelValues(entry.transitionLabel()).Inc()
}

func recordDLQQuarantined(entry dlqEntry, cause string) {
	dlqQuarantinedCounter.WithLabelValues(entry.transitionLabel(), cause).Inc()
}

func recordDLQRetry(entry dlqEntry) {
	dlqRetryCounter.WithLabelValues(entry.transitionLabel()).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `SELECT COALESCE(payload->>'transition', 'unknown'), COUNT(*)
                                    FROM outbox_dlq
                                   WHERE quarantined_at IS NULL
                                   GROUP BY 1`)
	if err != nil {
		return
	}
	defer rows.Close()

	dlqBacklogGauge.Reset()
	for rows.Next() {
		var transition string
		var count int
		if err := rows.Scan(&transition, &count); err != nil {
			return
		}
		dlqBacklogGauge.WithLabelValues(transition).Set(float64(count))
	}
}
