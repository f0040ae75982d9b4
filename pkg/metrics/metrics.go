package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Commit metrics
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_commits_total",
			Help: "Total number of transactions committed",
		},
	)

	ConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_commit_conflicts_total",
			Help: "Total number of transactions aborted on an OCC read/CAS conflict",
		},
	)

	// WAL metrics
	WalBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_wal_bytes",
			Help: "Total size in bytes of WAL segment files currently on disk",
		},
	)

	WalSegmentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_wal_segments_total",
			Help: "Number of WAL segment files currently on disk",
		},
	)

	// Checkpoint metrics
	ActiveCheckpointID = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_active_checkpoint_id",
			Help: "Identifier of the most recently captured checkpoint",
		},
	)

	CurrentVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_current_version",
			Help: "Highest commit version minted so far",
		},
	)
)

func init() {
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(ConflictsTotal)

	prometheus.MustRegister(WalBytes)
	prometheus.MustRegister(WalSegmentsTotal)

	prometheus.MustRegister(ActiveCheckpointID)
	prometheus.MustRegister(CurrentVersion)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram that a
// caller owns (e.g. one scoped to a single command or query path).
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
