// Package logging builds the process logger and attaches profiler fields to log
// records.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
// Records logged with a context that carries an active profiler session get
// profiler_id, profiler_name and profiler_step attributes:
//
//	ctx, step := profiler.Step(ctx, "load orders")
//	logger.InfoContext(ctx, "cache miss")
//	// ... profiler_id=8f0c... profiler_name="GET /orders" profiler_step="load orders"
//
// WithProfiler does the same for loggers used without a context.
package logging
