package stats

import "github.com/prometheus/client_golang/prometheus"

var (
	hoursSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "stats",
		Name:      "unparsable_hours_total",
		Help:      "Records whose hours worked could not be parsed and were left out of sums.",
	})

	hoursMissing = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "stats",
		Name:      "closed_without_hours_total",
		Help:      "Closed records with no hours worked, summed as zero.",
	})
)

func init() {
	prometheus.MustRegister(hoursSkipped, hoursMissing)
}
