/*
Package metrics exposes Prometheus metrics for the loom runtime.

Metrics are package-level collectors registered at init, grouped by
subsystem: replica (facts, commits, conflicts), transaction lifecycle
and retries, scheduler (registered actions, runs, dirty depth, queued
stream events), flow control (violations by mode), and durable storage
timings.

# Usage

Observing an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitApplyDuration)
	metrics.CommitsApplied.WithLabelValues(string(space)).Inc()

Serving the endpoint:

	http.Handle("/metrics", metrics.Handler())

# Integration Points

  - pkg/replica: commit application and conflict counters
  - pkg/transaction: lifecycle and retry counters
  - pkg/scheduler: run counts, latencies, dirty depth
  - pkg/cfc: violation counter by mode
  - pkg/storage: persistence latencies
  - cmd/loom: metrics serve command
*/
package metrics
