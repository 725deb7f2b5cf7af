package profiler

import (
	"sort"
	"sync"
)

// Execute types used by the bundled instrumentation.
const (
	ExecuteTypeNonQuery = "NonQuery"
	ExecuteTypeReader   = "Reader"
	ExecuteTypeScalar   = "Scalar"
)

// CustomTiming is a flat timing record for an external operation, such as one SQL
// command or one outgoing HTTP call, attached to the timing that was active when it
// was issued.
//
// Durations go through three states: started, first result received (optional) and
// stopped. FirstFetchDurationMilliseconds is the time to the first row or byte;
// DurationMilliseconds is the total.
type CustomTiming struct {
	ID                             string   `json:"id"`
	ParentTimingID                 string   `json:"parent_timing_id"`
	Category                       string   `json:"category"`
	CommandString                  string   `json:"command_string"`
	ExecuteType                    string   `json:"execute_type,omitempty"`
	StartMilliseconds              float64  `json:"start_ms"`
	DurationMilliseconds           *float64 `json:"duration_ms,omitempty"`
	FirstFetchDurationMilliseconds *float64 `json:"first_fetch_duration_ms,omitempty"`
	Errored                        bool     `json:"errored,omitempty"`
	IsDuplicate                    bool     `json:"is_duplicate,omitempty"`

	mu          sync.Mutex
	profiler    *Profiler
	startTicks  int64
	conditional bool
	minSaveMs   float64
}

// MarkFirstResult records the time to first result. Only the first call before Stop
// has an effect.
func (c *CustomTiming) MarkFirstResult() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profiler == nil || c.DurationMilliseconds != nil || c.FirstFetchDurationMilliseconds != nil {
		return
	}
	d := c.profiler.millisecondsSince(c.startTicks)
	c.FirstFetchDurationMilliseconds = &d
}

// SetErrored flags the operation as failed.
func (c *CustomTiming) SetErrored() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.Errored = true
	c.mu.Unlock()
}

// Stop freezes the total duration and returns it. Repeated calls return the first
// value. A timing created with CustomTimingIf that is shorter than its minimum is
// detached from its parent.
func (c *CustomTiming) Stop() float64 {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	if c.DurationMilliseconds != nil {
		d := *c.DurationMilliseconds
		c.mu.Unlock()
		return d
	}
	p := c.profiler
	if p == nil {
		c.mu.Unlock()
		return 0
	}
	d := p.millisecondsSince(c.startTicks)
	c.DurationMilliseconds = &d
	discard := c.conditional && d < c.minSaveMs
	c.mu.Unlock()

	if discard {
		if parent := p.lookup(c.ParentTimingID); parent != nil {
			parent.removeCustomTiming(c)
		}
	}
	return d
}

// Duration returns the frozen total duration, or false while the timing is open.
func (c *CustomTiming) Duration() (float64, bool) {
	if c == nil {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DurationMilliseconds == nil {
		return 0, false
	}
	return *c.DurationMilliseconds, true
}

func (c *CustomTiming) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.DurationMilliseconds != nil
}

// CategoryStats summarises the custom timings of one category.
type CategoryStats struct {
	Count                int     `json:"count"`
	DurationMilliseconds float64 `json:"duration_ms"`
	Duplicates           int     `json:"duplicates"`
	Errors               int     `json:"errors"`
}

func sortedCategories(m map[string][]*CustomTiming) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
