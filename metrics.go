package vramblk

import "github.com/ehrlich-b/vramblk/internal/metrics"

// Metrics accumulates I/O counters. Pass the same instance to both
// frontends for combined totals, or one each for split accounting. A
// nil *Metrics disables collection.
type Metrics = metrics.Metrics

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot = metrics.Snapshot

// NewMetrics creates a counter set with the uptime clock started.
func NewMetrics() *Metrics {
	return metrics.New()
}
