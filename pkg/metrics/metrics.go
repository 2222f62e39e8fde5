package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cride_auth_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// PermissionChecks counts permission evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cride_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"operation", "result"},
	)

	// RideEvents counts ride lifecycle transitions by type (create|join|update|finish) and result.
	RideEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cride_ride_events_total",
			Help: "Total number of ride lifecycle transitions",
		},
		[]string{"event", "result"},
	)

	// SweepRuns counts sweeper executions and the number of rides each run touched.
	SweepRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cride_sweep_runs_total",
			Help: "Total number of ride sweep executions",
		},
	)

	// SweepRidesFlagged counts rides matched by the sweep predicate.
	SweepRidesFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cride_sweep_rides_flagged_total",
			Help: "Total number of rides flagged by the periodic sweep",
		},
	)

	// EmailDispatches counts verification email deliveries by result (sent|retried|failed).
	EmailDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cride_email_dispatches_total",
			Help: "Total number of verification email dispatch attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cride_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
