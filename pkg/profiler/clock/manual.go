package clock

import "sync/atomic"

// Manual is a Clock that only moves when told to. It is safe for concurrent use.
type Manual struct {
	ticks atomic.Int64
	perMs int64
}

// NewManual creates a Manual clock at tick zero. A ticksPerMillisecond below one is
// treated as one.
func NewManual(ticksPerMillisecond int64) *Manual {
	if ticksPerMillisecond < 1 {
		ticksPerMillisecond = 1
	}
	return &Manual{perMs: ticksPerMillisecond}
}

// Now returns the current counter value.
func (m *Manual) Now() int64 {
	return m.ticks.Load()
}

// TicksPerMillisecond returns the configured conversion constant.
func (m *Manual) TicksPerMillisecond() int64 {
	return m.perMs
}

// Advance moves the counter forward. Negative values are ignored.
func (m *Manual) Advance(ticks int64) {
	if ticks <= 0 {
		return
	}
	m.ticks.Add(ticks)
}

// AdvanceMilliseconds moves the counter forward by ms milliseconds.
func (m *Manual) AdvanceMilliseconds(ms int64) {
	m.Advance(ms * m.perMs)
}

// Set moves the counter to an absolute value. Values behind the current reading are
// ignored so the clock stays monotonic.
func (m *Manual) Set(ticks int64) {
	for {
		cur := m.ticks.Load()
		if ticks <= cur {
			return
		}
		if m.ticks.CompareAndSwap(cur, ticks) {
			return
		}
	}
}
