package logging

import (
	"context"
	"io"
	"testing"

	"mercator-hq/stopwatch/pkg/profiler"
)

// BenchmarkLogger_Info_Enabled measures logging performance when enabled.
func BenchmarkLogger_Info_Enabled(b *testing.B) {
	logger, err := New(Config{Level: "info", Format: "json", Writer: io.Discard})
	if err != nil {
		b.Fatalf("Failed to create logger: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("test message", "key", "value", "count", i)
	}
}

// BenchmarkLogger_Debug_Disabled measures the cost of a filtered record.
func BenchmarkLogger_Debug_Disabled(b *testing.B) {
	logger, _ := New(Config{Level: "info", Format: "json", Writer: io.Discard})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug("test message", "key", "value", "count", i)
	}
}

// BenchmarkLogger_InfoContext_Profiled measures logging inside a profiled step.
func BenchmarkLogger_InfoContext_Profiled(b *testing.B) {
	logger, _ := New(Config{Level: "info", Format: "json", Writer: io.Discard})
	opts := profiler.DefaultOptions()
	opts.Logger = logger
	ctx, p := profiler.Start(context.Background(), "bench", opts)
	defer p.Stop(ctx, true)
	ctx, step := profiler.Step(ctx, "work")
	defer step.Stop()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.InfoContext(ctx, "test message", "count", i)
	}
}
