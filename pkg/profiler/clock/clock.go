package clock

import "time"

// Clock is a monotonic tick source.
type Clock interface {
	// Now returns the current tick count. Values only ever increase.
	Now() int64

	// TicksPerMillisecond returns the number of ticks in one millisecond.
	// It is constant for the lifetime of the clock.
	TicksPerMillisecond() int64
}

// Factory creates a Clock for a new profiling session.
type Factory func() Clock

// systemClock measures elapsed time from a fixed origin using the monotonic
// component of time.Time.
type systemClock struct {
	origin time.Time
}

// System returns a Clock reporting nanoseconds elapsed since the call.
func System() Clock {
	return &systemClock{origin: time.Now()}
}

// Now returns nanoseconds since the clock was created.
func (c *systemClock) Now() int64 {
	return int64(time.Since(c.origin))
}

// TicksPerMillisecond returns 1e6.
func (c *systemClock) TicksPerMillisecond() int64 {
	return int64(time.Millisecond)
}

// ToMilliseconds converts a tick count into milliseconds, truncated to one decimal place.
func ToMilliseconds(ticks, ticksPerMillisecond int64) float64 {
	if ticksPerMillisecond <= 0 {
		return 0
	}
	tenths := ticks * 10 / ticksPerMillisecond
	return float64(tenths) / 10
}
