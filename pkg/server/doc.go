// Package server hosts the stopwatch HTTP endpoints.
//
// A Server mounts, on a single listener:
//
//   - the profiled application handler at "/", wrapped in the profiling middleware
//   - the session results endpoints under ServerConfig.ResultsPath
//   - the Prometheus scrape endpoint at the configured metrics path
//   - /health, /ready and /version
//
// Every route runs behind panic recovery and request logging.
//
// # Lifecycle
//
// Start blocks until the context is cancelled, SIGINT or SIGTERM arrives, or the
// listener fails. It then shuts the HTTP server down gracefully, waiting at most
// ServerConfig.ShutdownTimeout for in-flight requests:
//
//	srv := server.NewServer(&cfg.Server, server.Options{
//	    Profiling: profilingConfig,
//	    Collector: collector,
//	    Checker:   checker,
//	    App:       appHandler,
//	})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
package server
