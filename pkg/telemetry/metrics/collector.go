package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mercator-hq/stopwatch/pkg/config"
	"mercator-hq/stopwatch/pkg/profiler"
	"mercator-hq/stopwatch/pkg/profiler/retention"
)

// Collector owns the registry and the metric families recorded outside the
// profiler package.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	profiler *profiler.Metrics

	pruneRuns     *prometheus.CounterVec
	prunedTotal   *prometheus.CounterVec
	pruneDuration prometheus.Histogram
	lastPrune     prometheus.Gauge
}

// NewCollector creates a collector with the given configuration. If registry is
// nil, a new registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true, Path: config.DefaultMetricsPath}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}
	if !cfg.Enabled {
		return c
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.profiler = profiler.NewMetrics(registry)

	factory := promauto.With(registry)
	c.pruneRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stopwatch_retention_runs_total",
			Help: "Total number of retention passes, by result",
		},
		[]string{"result"},
	)
	c.prunedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stopwatch_retention_deleted_sessions_total",
			Help: "Total number of sessions deleted by retention, by reason",
		},
		[]string{"reason"},
	)
	c.pruneDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stopwatch_retention_duration_seconds",
			Help:    "Duration of retention passes",
			Buckets: prometheus.DefBuckets,
		},
	)
	c.lastPrune = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "stopwatch_retention_last_success_timestamp_seconds",
			Help: "Unix time of the last successful retention pass",
		},
	)
	return c
}

// Enabled reports whether metrics are collected.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Profiler returns the session metrics to set on profiler.Options. It is nil when
// the collector is disabled.
func (c *Collector) Profiler() *profiler.Metrics {
	return c.profiler
}

// ObservePrune records one retention pass. It has the retention.Observer signature.
func (c *Collector) ObservePrune(res retention.Result, elapsed time.Duration, err error) {
	if !c.config.Enabled {
		return
	}

	c.pruneDuration.Observe(elapsed.Seconds())
	if err != nil {
		c.pruneRuns.WithLabelValues("error").Inc()
		return
	}
	c.pruneRuns.WithLabelValues("success").Inc()
	c.prunedTotal.WithLabelValues("age").Add(float64(res.DeletedByAge))
	c.prunedTotal.WithLabelValues("count").Add(float64(res.DeletedByCount))
	c.lastPrune.SetToCurrentTime()
}

// Counter is implemented by stores that can report how many sessions they hold.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// RegisterStoredSessions exposes the store's session count as a gauge sampled on
// each scrape. Count errors report -1.
func (c *Collector) RegisterStoredSessions(store Counter) {
	if !c.config.Enabled || store == nil {
		return
	}
	promauto.With(c.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "stopwatch_storage_sessions",
			Help: "Number of sessions currently stored",
		},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := store.Count(ctx)
			if err != nil {
				return -1
			}
			return float64(n)
		},
	)
}
