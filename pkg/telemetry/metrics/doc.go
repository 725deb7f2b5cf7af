// Package metrics owns the Prometheus registry served by stopwatch.
//
// A Collector registers Go runtime and process collectors, the profiler's session
// metrics and retention metrics on one registry, and exposes them through Handler:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	opts.Metrics = collector.Profiler()
//	pruner.SetObserver(collector.ObservePrune)
//	mux.Handle("GET /metrics", collector.Handler())
//
// A disabled collector hands out a nil *profiler.Metrics, which records nothing.
package metrics
