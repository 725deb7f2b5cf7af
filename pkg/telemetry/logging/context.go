package logging

import (
	"context"
	"log/slog"

	"mercator-hq/stopwatch/pkg/profiler"
)

// Attribute keys added for profiled requests.
const (
	ProfilerIDKey   = "profiler_id"
	ProfilerNameKey = "profiler_name"
	ProfilerStepKey = "profiler_step"
)

// WithProfiler returns logger with the profiler fields of ctx attached. It returns
// logger unchanged when ctx carries no session.
func WithProfiler(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := profilerAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// profilerAttrs extracts the session id, session name and active step from ctx.
func profilerAttrs(ctx context.Context) []slog.Attr {
	p := profiler.Current(ctx)
	if p == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String(ProfilerIDKey, p.ID),
		slog.String(ProfilerNameKey, p.Name),
	}
	if head := profiler.Head(ctx); head != nil && !head.IsRoot() {
		attrs = append(attrs, slog.String(ProfilerStepKey, head.Name))
	}
	return attrs
}
