package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GrantChecks counts scoped permission evaluations and their outcome (allow|deny|error).
	GrantChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopegrant_checks_total",
			Help: "Total number of scoped permission checks",
		},
		[]string{"kind", "result"},
	)

	// GrantMutations counts grant mutations by operation (grant|revoke|sync|assign_role|remove_role|sync_roles).
	GrantMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scopegrant_mutations_total",
			Help: "Total number of grant mutations",
		},
		[]string{"operation", "result"},
	)

	// ExpiredGrantsPurged counts rows removed by the expiry janitor.
	ExpiredGrantsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scopegrant_expired_grants_purged_total",
			Help: "Total number of expired grant rows purged",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scopegrant_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
