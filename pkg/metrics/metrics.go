package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Replica metrics
	FactsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loom_facts_total",
			Help: "Total number of facts held by layer (confirmed, pending)",
		},
		[]string{"space", "layer"},
	)

	CommitsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_commits_applied_total",
			Help: "Total number of commits applied per space",
		},
		[]string{"space"},
	)

	CommitConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_commit_conflicts_total",
			Help: "Total number of commits rejected with a conflict",
		},
		[]string{"space"},
	)

	CommitApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_commit_apply_duration_seconds",
			Help:    "Time taken to verify claims and apply facts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Transaction metrics
	TransactionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_transactions_opened_total",
			Help: "Total number of transactions opened",
		},
	)

	TransactionsCommitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_transactions_committed_total",
			Help: "Total number of transactions committed",
		},
	)

	TransactionsAborted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_transactions_aborted_total",
			Help: "Total number of transactions aborted",
		},
	)

	TransactionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_transaction_retries_total",
			Help: "Total number of conflict-driven transaction retries",
		},
	)

	// Scheduler metrics
	ActionsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_actions_registered",
			Help: "Number of actions currently registered with the scheduler",
		},
	)

	ActionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_action_runs_total",
			Help: "Total number of action executions by kind (effect, computation)",
		},
		[]string{"kind"},
	)

	ActionRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_action_run_duration_seconds",
			Help:    "Time taken by a single action execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DirtyDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_dirty_depth",
			Help: "Number of actions currently marked dirty",
		},
	)

	EventsQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_stream_events_queued_total",
			Help: "Total number of events queued to stream cells",
		},
	)

	// Flow-control metrics
	CFCViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_cfc_violations_total",
			Help: "Total number of flow-control violations by mode",
		},
		[]string{"mode"},
	)

	// Storage metrics
	StorageWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_storage_write_duration_seconds",
			Help:    "Time taken to persist a batch of facts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_storage_read_duration_seconds",
			Help:    "Time taken to load facts from the durable store in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(FactsTotal)
	prometheus.MustRegister(CommitsApplied)
	prometheus.MustRegister(CommitConflicts)
	prometheus.MustRegister(CommitApplyDuration)
	prometheus.MustRegister(TransactionsOpened)
	prometheus.MustRegister(TransactionsCommitted)
	prometheus.MustRegister(TransactionsAborted)
	prometheus.MustRegister(TransactionRetries)
	prometheus.MustRegister(ActionsRegistered)
	prometheus.MustRegister(ActionRuns)
	prometheus.MustRegister(ActionRunDuration)
	prometheus.MustRegister(DirtyDepth)
	prometheus.MustRegister(EventsQueued)
	prometheus.MustRegister(CFCViolations)
	prometheus.MustRegister(StorageWriteDuration)
	prometheus.MustRegister(StorageReadDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
