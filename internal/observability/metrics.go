// Package observability holds the service-level Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	transitionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance_service",
		Subsystem: "persistence",
		Name:      "last_transition_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workday transition persisted to Postgres.",
	})

	transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "workday",
		Name:      "transitions_total",
		Help:      "Workday transitions by name and outcome (accepted, invalid, out_of_order, error).",
	}, []string{"transition", "outcome"})
)

func init() {
	prometheus.MustRegister(transitionPersistGauge, transitionCounter)
}

// RecordTransitionPersisted updates the persistence watermark gauge.
func RecordTransitionPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	transitionPersistGauge.Set(float64(ts.Unix()))
}

// RecordTransition counts a transition attempt by outcome.
func RecordTransition(transition, outcome string) {
	transitionCounter.WithLabelValues(transition, outcome).Inc()
}
