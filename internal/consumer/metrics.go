package consumer

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	transitionsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "consumer",
		Name:      "transitions_consumed_total",
		Help:      "Attendance events handled and committed, by event type and transition.",
	}, []string{"event_type", "transition"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Handler failures left uncommitted for redelivery, by event type and transition.",
	}, []string{"event_type", "transition"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance_service",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Records committed without handling because they could not be decoded, by stage.",
	}, []string{"topic", "stage"})

	// Time from the transition being accepted by the API to its event being handled here.
	transitionDelay = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance_service",
		Subsystem: "consumer",
		Name:      "transition_delay_seconds",
		Help:      "Delay between an attendance transition occurring and its event being consumed.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"transition"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attendance_service",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(transitionsConsumed, handlerErrorCounter, decodeErrorCounter, transitionDelay, lastMessageGauge)
}

func recordProcessed(msg Message) {
	transitionsConsumed.WithLabelValues(msg.EventType, msg.TransitionName()).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
	if msg.Transition != nil && !msg.Transition.OccurredAt.IsZero() {
		if delay := time.Since(msg.Transition.OccurredAt); delay >= 0 {
			transitionDelay.WithLabelValues(msg.Transition.Transition).Observe(delay.Seconds())
		}
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.EventType, msg.TransitionName()).Inc()
}

func recordDecodeError(topic string, err error) {
	stage := "unknown"
	var de *decodeError
	if errors.As(err, &de) {
		stage = de.stage
	}
	decodeErrorCounter.WithLabelValues(topic, stage).Inc()
}
