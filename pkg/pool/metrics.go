package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AcquireTotal counts acquisitions by outcome.
	AcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvpool_acquire_total",
			Help: "Total number of pool acquisitions by result",
		},
		[]string{"pool", "result"}, // "reused", "created", "timeout", "cancelled", "dial_error", "closed"
	)

	// AcquireWait tracks how long callers waited for a free slot.
	AcquireWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvpool_acquire_wait_seconds",
			Help:    "Time spent waiting for a free pool slot",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"pool"},
	)

	// Connections tracks live connections by state.
	Connections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kvpool_connections",
			Help: "Current number of pool connections by state",
		},
		[]string{"pool", "state"}, // "idle", "in_use"
	)

	// ConnectionsClosed counts retired connections by reason.
	ConnectionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvpool_connections_closed_total",
			Help: "Total number of pool connections closed by reason",
		},
		[]string{"pool", "reason"}, // "max_lifetime", "max_idle", "idle_time", "unhealthy", "pool_closed"
	)
)
