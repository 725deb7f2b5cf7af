package profiler

import (
	"math"
	"sync"
)

// Timing is one node of a session's timing tree.
//
// Children and CustomTimings are appended while the timing is open and are never
// read by the session until it stops, so a single mutex per node is enough. Parent
// links are ids resolved through the owning session.
type Timing struct {
	ID                   string   `json:"id"`
	ParentTimingID       string   `json:"parent_timing_id,omitempty"`
	Name                 string   `json:"name"`
	Depth                int      `json:"depth"`
	StartMilliseconds    float64  `json:"start_ms"`
	DurationMilliseconds *float64 `json:"duration_ms,omitempty"`

	// Children are ordered by creation.
	Children []*Timing `json:"children,omitempty"`

	// CustomTimings maps a category ("sql", "http", ...) to the sub-timings issued
	// while this timing was active.
	CustomTimings map[string][]*CustomTiming `json:"custom_timings,omitempty"`

	// Computed when the session stops.
	DurationWithoutChildrenMilliseconds float64 `json:"duration_without_children_ms"`
	HasChildren                         bool    `json:"has_children"`
	HasCustomTimings                    bool    `json:"has_custom_timings"`
	HasDuplicateCustomTimings           bool    `json:"has_duplicate_custom_timings"`
	IsTrivial                           bool    `json:"is_trivial"`

	mu             sync.Mutex
	profiler       *Profiler
	startTicks     int64
	conditional    bool
	minSaveMs      float64
	keepIfChildren bool
	discarded      bool
}

// Stop freezes the duration of the timing and makes its parent the session's default
// active timing again. Only the first call records a duration; later calls return it
// unchanged. Stop on a nil Timing returns 0.
//
// A timing opened with StepIf is removed from its parent here when it is shorter than
// its minimum and either has no children or was not asked to keep them.
func (t *Timing) Stop() float64 {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	if t.DurationMilliseconds != nil {
		d := *t.DurationMilliseconds
		t.mu.Unlock()
		return d
	}
	p := t.profiler
	if p == nil {
		t.mu.Unlock()
		return 0
	}
	d := p.millisecondsSince(t.startTicks)
	t.DurationMilliseconds = &d
	// Set with the duration under the same lock; finalize filters on it.
	t.discarded = t.conditional && d < t.minSaveMs && (len(t.Children) == 0 || !t.keepIfChildren)
	discarded := t.discarded
	t.mu.Unlock()

	p.timingStopped(t, discarded)
	return d
}

// Duration returns the frozen duration, or false while the timing is open.
func (t *Timing) Duration() (float64, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.DurationMilliseconds == nil {
		return 0, false
	}
	return *t.DurationMilliseconds, true
}

// IsRoot reports whether the timing has no parent.
func (t *Timing) IsRoot() bool {
	return t != nil && t.ParentTimingID == ""
}

func (t *Timing) isDiscarded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.discarded
}

func (t *Timing) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.DurationMilliseconds != nil
}

// appendChild adds child as the last child. It fails once the timing is stopped.
func (t *Timing) appendChild(child *Timing) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.DurationMilliseconds != nil {
		return false
	}
	child.ParentTimingID = t.ID
	child.Depth = t.Depth + 1
	t.Children = append(t.Children, child)
	return true
}

func (t *Timing) removeChild(child *Timing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.Children {
		if c == child {
			t.Children = append(t.Children[:i:i], t.Children[i+1:]...)
			return
		}
	}
}

func (t *Timing) appendCustomTiming(ct *CustomTiming) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.DurationMilliseconds != nil {
		return false
	}
	if t.CustomTimings == nil {
		t.CustomTimings = make(map[string][]*CustomTiming)
	}
	ct.ParentTimingID = t.ID
	t.CustomTimings[ct.Category] = append(t.CustomTimings[ct.Category], ct)
	return true
}

func (t *Timing) removeCustomTiming(ct *CustomTiming) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.CustomTimings[ct.Category]
	for i, c := range list {
		if c == ct {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.CustomTimings, ct.Category)
		if len(t.CustomTimings) == 0 {
			t.CustomTimings = nil
		}
		return
	}
	t.CustomTimings[ct.Category] = list
}

// snapshot returns the current children and custom timings under the lock.
func (t *Timing) snapshot() ([]*Timing, []*CustomTiming) {
	t.mu.Lock()
	defer t.mu.Unlock()
	children := append([]*Timing(nil), t.Children...)
	var customs []*CustomTiming
	for _, category := range sortedCategories(t.CustomTimings) {
		customs = append(customs, t.CustomTimings[category]...)
	}
	return children, customs
}

// walk visits t and its descendants depth first, parents before children.
func (t *Timing) walk(fn func(*Timing)) {
	if t == nil {
		return
	}
	fn(t)
	children, _ := t.snapshot()
	for _, c := range children {
		if !c.isDiscarded() {
			c.walk(fn)
		}
	}
}

func durationOf(d *float64) float64 {
	if d == nil {
		return 0
	}
	return *d
}

func roundTenths(ms float64) float64 {
	return math.Round(ms*10) / 10
}
