package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide Prometheus registry. One instance is built
// at startup and handed to every component that emits a counter or gauge;
// nothing in the scheduler or executor reaches for a package-level global.
type Metrics struct {
	registry *prometheus.Registry

	FeaturesCompleted prometheus.Counter
	FeaturesFailed    *prometheus.CounterVec
	SessionsStarted   *prometheus.CounterVec
	SessionsFinished  *prometheus.CounterVec
	SessionDuration   *prometheus.HistogramVec
	QueueDepth        *prometheus.GaugeVec
	MergeLockWait     prometheus.Histogram
	AgentFallbacks    *prometheus.CounterVec
	BreakerTrips      prometheus.Counter
	LockContention    prometheus.Counter
	SchedulerLoops    *prometheus.CounterVec
}

// NewMetrics registers the full counter and gauge set against a fresh
// registry, so that two Orchestrator instances in the same test binary
// never collide on global prometheus.DefaultRegisterer.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		FeaturesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_features_completed_total",
			Help: "Features that reached the passed state.",
		}),
		FeaturesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_features_failed_total",
			Help: "Features that reached the failed state, by failure kind.",
		}, []string{"kind"}),
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_sessions_started_total",
			Help: "Agent sessions started, by track.",
		}, []string{"track"}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_sessions_finished_total",
			Help: "Agent sessions finished, by track and outcome.",
		}, []string{"track", "outcome"}),
		SessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_session_duration_seconds",
			Help:    "Wall-clock duration of an agent session.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"track"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Pending items per track and priority tier.",
		}, []string{"track", "tier"}),
		MergeLockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_merge_lock_wait_seconds",
			Help:    "Time spent waiting for the verification mutex before a merge window.",
			Buckets: prometheus.DefBuckets,
		}),
		AgentFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_agent_fallbacks_total",
			Help: "Times the executor fell back from one agent to the next.",
		}, []string{"from_agent", "to_agent"}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_critical_failure_breaker_trips_total",
			Help: "Times the critical-failure breaker tripped and stopped one track's loop.",
		}),
		LockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_file_lock_contention_total",
			Help: "Times a caller had to retry acquiring the feature file lock.",
		}),
		SchedulerLoops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_scheduler_loops_total",
			Help: "Per-track scheduling loop iterations.",
		}, []string{"track"}),
	}

	reg.MustRegister(
		m.FeaturesCompleted, m.FeaturesFailed, m.SessionsStarted, m.SessionsFinished,
		m.SessionDuration, m.QueueDepth, m.MergeLockWait, m.AgentFallbacks,
		m.BreakerTrips, m.LockContention, m.SchedulerLoops,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry. This is the
// one ambient HTTP surface the process exposes; it is unrelated to, and
// does not imply, a control-plane HTTP API.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
