package profiler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for profiling sessions. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	sessionsStarted        prometheus.Counter
	sessionsStopped        *prometheus.CounterVec
	sessionDuration        prometheus.Histogram
	customTimings          *prometheus.CounterVec
	duplicateCustomTimings *prometheus.CounterVec
	storageErrors          *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessionsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stopwatch_profiler_sessions_started_total",
				Help: "Total number of profiling sessions started",
			},
		),

		sessionsStopped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stopwatch_profiler_sessions_stopped_total",
				Help: "Total number of profiling sessions stopped, by outcome",
			},
			[]string{"result"},
		),

		sessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stopwatch_profiler_session_duration_seconds",
				Help:    "Root timing duration of stopped sessions",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		customTimings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stopwatch_profiler_custom_timings_total",
				Help: "Total number of custom timings recorded, by category",
			},
			[]string{"category"},
		),

		duplicateCustomTimings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stopwatch_profiler_duplicate_custom_timings_total",
				Help: "Total number of custom timings flagged as duplicates, by category",
			},
			[]string{"category"},
		),

		storageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stopwatch_profiler_storage_errors_total",
				Help: "Total number of failed storage calls made by the session lifecycle",
			},
			[]string{"operation"},
		),
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) sessionStopped(result string, durationMs float64) {
	if m == nil {
		return
	}
	m.sessionsStopped.WithLabelValues(result).Inc()
	m.sessionDuration.Observe(durationMs / 1000)
}

func (m *Metrics) customTimingStarted(category string) {
	if m == nil {
		return
	}
	m.customTimings.WithLabelValues(category).Inc()
}

func (m *Metrics) duplicatesFound(byCategory map[string]int) {
	if m == nil {
		return
	}
	for category, n := range byCategory {
		m.duplicateCustomTimings.WithLabelValues(category).Add(float64(n))
	}
}

func (m *Metrics) storageFailed(operation string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(operation).Inc()
}
