package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts facade operations by provider and outcome.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kv_commands_total",
			Help: "Total number of key-value operations",
		},
		[]string{"provider", "command", "result"}, // command: "set", "get"; result: "ok", "error"
	)

	// CommandDuration tracks end-to-end operation latency, acquisition included.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kv_command_duration_seconds",
			Help:    "Key-value operation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"provider", "command"},
	)

	// Errors counts failed operations by stage.
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kv_errors_total",
			Help: "Total number of key-value operation errors by stage",
		},
		[]string{"provider", "stage"}, // "client_construction", "acquisition", "command_execution", "type_decoding"
	)
)
