package storage

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"mercator-hq/stopwatch/pkg/profiler"
	"mercator-hq/stopwatch/pkg/profiler/clock"
)

func testOptions(clk *clock.Manual) *profiler.Options {
	opts := profiler.DefaultOptions()
	opts.ClockFactory = func() clock.Clock { return clk }
	opts.MachineName = "test-host"
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return opts
}

// sampleProfiler builds a stopped session for user with nested steps, duplicates and
// an errored custom timing.
func sampleProfiler(t *testing.T, name, user string) *profiler.Profiler {
	t.Helper()
	clk := clock.NewManual(1)
	ctx, p := profiler.Start(profiler.WithUser(context.Background(), user), name, testOptions(clk))
	p.AddCustomLink("logs", "https://logs.example.com")

	loadCtx, load := profiler.Step(ctx, "load")
	for i := 0; i < 2; i++ {
		ct := profiler.StartCustomTiming(loadCtx, "sql", "SELECT * FROM orders WHERE id = ?", profiler.ExecuteTypeReader)
		clk.Advance(2)
		ct.MarkFirstResult()
		clk.Advance(2)
		ct.Stop()
	}
	innerCtx, inner := profiler.Step(loadCtx, "prices")
	h := profiler.StartCustomTiming(innerCtx, "http", "GET http://prices/api", "GET")
	h.SetErrored()
	clk.Advance(6)
	h.Stop()
	inner.Stop()
	load.Stop()

	_, render := profiler.Step(ctx, "render")
	clk.Advance(3)
	render.Stop()

	if _, err := p.Stop(ctx, true); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	return p
}

// sampleAt is sampleProfiler with a fixed start time.
func sampleAt(t *testing.T, name string, started time.Time) *profiler.Profiler {
	t.Helper()
	p := sampleProfiler(t, name, "alice")
	p.Started = started
	return p
}

// assertSameTree fails unless got flattens to the same record as want, ignoring the
// viewed flag and the location of the start time.
func assertSameTree(t *testing.T, want, got *profiler.Profiler) {
	t.Helper()
	if got == nil {
		t.Fatal("Expected a session, got nil")
	}
	w, g := want.Flatten(), got.Flatten()
	if !w.Session.Started.Equal(g.Session.Started) {
		t.Errorf("Expected started %v, got %v", w.Session.Started, g.Session.Started)
	}
	w.Session.Started, g.Session.Started = time.Time{}, time.Time{}
	w.Session.HasUserViewed, g.Session.HasUserViewed = false, false

	if !reflect.DeepEqual(w.Session, g.Session) {
		t.Errorf("Session mismatch:\nwant %+v\ngot  %+v", w.Session, g.Session)
	}
	if !reflect.DeepEqual(w.Timings, g.Timings) {
		t.Errorf("Timings mismatch:\nwant %+v\ngot  %+v", w.Timings, g.Timings)
	}
	if !reflect.DeepEqual(w.CustomTimings, g.CustomTimings) {
		t.Errorf("Custom timings mismatch:\nwant %+v\ngot  %+v", w.CustomTimings, g.CustomTimings)
	}
}
