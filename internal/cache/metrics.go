package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	lookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "query_cache",
		Name:      "lookups_total",
		Help:      "Query cache lookups by filter and result (hit, miss, expired, error).",
	}, []string{"filter", "result"})

	writes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "query_cache",
		Name:      "writes_total",
		Help:      "Query cache writes by filter and result (stored, skipped, error).",
	}, []string{"filter", "result"})

	invalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "query_cache",
		Name:      "invalidations_total",
		Help:      "Bulk invalidations of the query cache.",
	})

	invalidatedEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "query_cache",
		Name:      "invalidated_entries_total",
		Help:      "Entries removed by bulk invalidations.",
	})
)

func init() {
	prometheus.MustRegister(lookups, writes, invalidations, invalidatedEntries)
}
