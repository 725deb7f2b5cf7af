// Package clock provides the elapsed-time source used by the profiler.
//
// A Clock reports monotonic ticks, not wall-clock time, together with the number of
// ticks in one millisecond. The profiler converts tick differences into millisecond
// durations, so any unit works as long as TicksPerMillisecond is consistent.
//
// # Implementations
//
// System returns a clock backed by the runtime's monotonic reading, in nanoseconds.
// Manual returns a clock whose counter only moves when test code advances it, which
// makes span durations fully deterministic:
//
//	clk := clock.NewManual(1) // one tick per millisecond
//	opts.ClockFactory = func() clock.Clock { return clk }
//	...
//	clk.Advance(10) // the open span is now 10ms long
package clock
