// Package metrics provides the Prometheus registry for kvpool.
// All metrics are defined in their respective packages (pool, cache)
// to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by kvpool.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry read by the /metrics endpoint.
var Gatherer = prometheus.DefaultGatherer

// Metrics Documentation
//
// Pool Metrics (pkg/pool):
//   - kvpool_acquire_total{pool, result} (Counter): Acquisitions by result
//     (reused, created, timeout, cancelled, dial_error, closed)
//   - kvpool_acquire_wait_seconds{pool} (Histogram): Time spent waiting for a slot
//   - kvpool_connections{pool, state} (Gauge): Live connections by state (idle, in_use)
//   - kvpool_connections_closed_total{pool, reason} (Counter): Retired connections by
//     reason (max_lifetime, max_idle, idle_time, unhealthy, pool_closed)
//
// Facade Metrics (pkg/cache):
//   - kv_commands_total{provider, command, result} (Counter): Operations by outcome
//   - kv_command_duration_seconds{provider, command} (Histogram): Operation latency
//   - kv_errors_total{provider, stage} (Counter): Failures by error stage
//
// Example Prometheus Queries:
//
//   # Acquisition timeout rate per pool
//   sum by (pool) (rate(kvpool_acquire_total{result="timeout"}[5m]))
//
//   # Pool saturation
//   kvpool_connections{state="in_use"} / on(pool) group_left kvpool_connections{state="idle"}
//
//   # P95 latency per provider
//   histogram_quantile(0.95, sum by (provider, le) (rate(kv_command_duration_seconds_bucket[5m])))
//
//   # Error share by stage
//   sum by (stage) (rate(kv_errors_total[5m]))
