package profiler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/stopwatch/pkg/profiler/clock"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateCreated has a root timing but does not accept timings yet.
	StateCreated State = iota
	// StateActive accepts new timings.
	StateActive
	// StateStopped is finalized; the tree no longer changes.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Profiler is one profiling session: a root timing plus the bookkeeping needed to
// grow, finalize and persist the tree under it.
type Profiler struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Started              time.Time         `json:"started"`
	DurationMilliseconds *float64          `json:"duration_ms,omitempty"`
	MachineName          string            `json:"machine_name,omitempty"`
	User                 string            `json:"user,omitempty"`
	HasUserViewed        bool              `json:"has_user_viewed"`
	Root                 *Timing           `json:"root"`
	CustomLinks          map[string]string `json:"custom_links,omitempty"`

	// Computed when the session stops.
	HasDuplicateCustomTimings            bool    `json:"has_duplicate_custom_timings"`
	HasTrivialTimings                    bool    `json:"has_trivial_timings"`
	HasAllTrivialTimings                 bool    `json:"has_all_trivial_timings"`
	TrivialDurationThresholdMilliseconds float64 `json:"trivial_duration_threshold_ms"`

	mu         sync.Mutex
	opts       Options
	clock      clock.Clock
	startTicks int64
	state      State
	head       *Timing
	timings    map[string]*Timing
}

// StopResult is delivered by StopAsync.
type StopResult struct {
	Stopped bool
	Err     error
}

// Start creates an active session named name and returns a context carrying it. The
// user is taken from ctx (see WithUser). A nil opts uses DefaultOptions.
//
// Start panics if the clock factory returns nil.
func Start(ctx context.Context, name string, opts *Options) (context.Context, *Profiler) {
	p := newProfiler(name, UserFromContext(ctx), opts)
	p.activate()
	return NewContext(ctx, p), p
}

func newProfiler(name, user string, opts *Options) *Profiler {
	o := opts.resolve()
	clk := o.ClockFactory()
	if clk == nil {
		panic("profiler: clock factory returned nil")
	}

	p := &Profiler{
		ID:                                   uuid.NewString(),
		Name:                                 name,
		Started:                              time.Now().UTC(),
		MachineName:                          o.MachineName,
		User:                                 user,
		TrivialDurationThresholdMilliseconds: o.TrivialDurationThresholdMilliseconds,
		opts:                                 o,
		clock:                                clk,
		startTicks:                           clk.Now(),
		state:                                StateCreated,
		timings:                              make(map[string]*Timing),
	}
	p.Root = &Timing{
		ID:         uuid.NewString(),
		Name:       name,
		profiler:   p,
		startTicks: p.startTicks,
	}
	p.timings[p.Root.ID] = p.Root
	p.head = p.Root
	return p
}

// activate moves a created session to StateActive. It reports false for any other
// state.
func (p *Profiler) activate() bool {
	p.mu.Lock()
	if p.state != StateCreated {
		p.mu.Unlock()
		return false
	}
	p.state = StateActive
	p.mu.Unlock()

	p.opts.Metrics.sessionStarted()
	p.opts.Logger.Debug("profiler started", "profiler_id", p.ID, "name", p.Name)
	return true
}

// State returns the lifecycle state.
func (p *Profiler) State() State {
	if p == nil {
		return StateStopped
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsActive reports whether the session still accepts timings.
func (p *Profiler) IsActive() bool {
	return p.State() == StateActive
}

// SetName renames the session. It fails once the session has stopped.
func (p *Profiler) SetName(name string) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateStopped {
		return false
	}
	p.Name = name
	return true
}

// Head returns the session's default active timing: the most recently opened timing
// that is still open, or nil once stopped. Code holding a context should prefer the
// package-level Head, which honours the calling branch.
func (p *Profiler) Head() *Timing {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return nil
	}
	return p.openAncestorLocked(p.head)
}

// Step opens a child of the active timing for ctx and returns a context in which the
// child is active. Release it with Stop, usually deferred.
func (p *Profiler) Step(ctx context.Context, name string) (context.Context, *Timing) {
	return p.step(ctx, name, false, 0, false)
}

// StepIf is like Step, but when the timing stops with a duration below minMilliseconds
// it is removed from its parent, unless it has children and keepIfChildren is set.
func (p *Profiler) StepIf(ctx context.Context, name string, minMilliseconds float64, keepIfChildren bool) (context.Context, *Timing) {
	return p.step(ctx, name, true, minMilliseconds, keepIfChildren)
}

// StepKeepIfChildren opens a timing that is never classified trivial while it has
// children, whatever ShowTrivialWithChildren says.
func (p *Profiler) StepKeepIfChildren(ctx context.Context, name string) (context.Context, *Timing) {
	return p.step(ctx, name, false, 0, true)
}

func (p *Profiler) step(ctx context.Context, name string, conditional bool, minMs float64, keepIfChildren bool) (context.Context, *Timing) {
	if p == nil || isIgnored(ctx) {
		return ctx, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return ctx, nil
	}

	now := p.clock.Now()
	child := &Timing{
		ID:                uuid.NewString(),
		Name:              name,
		StartMilliseconds: p.millisecondsBetween(p.startTicks, now),
		profiler:          p,
		startTicks:        now,
		conditional:       conditional,
		minSaveMs:         minMs,
		keepIfChildren:    keepIfChildren,
	}

	parent := p.openAncestorLocked(p.contextHeadLocked(ctx))
	for parent != nil && !parent.appendChild(child) {
		parent = p.openAncestorLocked(p.timings[parent.ParentTimingID])
	}
	if parent == nil {
		return ctx, nil
	}

	p.timings[child.ID] = child
	p.head = child
	return context.WithValue(ctx, headKey{}, child), child
}

// CustomTiming records an external operation under the active timing for ctx. The
// caller stops it when the operation completes.
func (p *Profiler) CustomTiming(ctx context.Context, category, commandString, executeType string) *CustomTiming {
	return p.customTiming(ctx, category, commandString, executeType, false, 0)
}

// CustomTimingIf is like CustomTiming, but the record is dropped at Stop when it is
// shorter than minSaveMilliseconds.
func (p *Profiler) CustomTimingIf(ctx context.Context, category, commandString, executeType string, minSaveMilliseconds float64) *CustomTiming {
	return p.customTiming(ctx, category, commandString, executeType, true, minSaveMilliseconds)
}

func (p *Profiler) customTiming(ctx context.Context, category, command, executeType string, conditional bool, minMs float64) *CustomTiming {
	if p == nil || isIgnored(ctx) {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return nil
	}

	now := p.clock.Now()
	ct := &CustomTiming{
		ID:                uuid.NewString(),
		Category:          category,
		CommandString:     command,
		ExecuteType:       executeType,
		StartMilliseconds: p.millisecondsBetween(p.startTicks, now),
		profiler:          p,
		startTicks:        now,
		conditional:       conditional,
		minSaveMs:         minMs,
	}

	parent := p.openAncestorLocked(p.contextHeadLocked(ctx))
	for parent != nil && !parent.appendCustomTiming(ct) {
		parent = p.openAncestorLocked(p.timings[parent.ParentTimingID])
	}
	if parent == nil {
		return nil
	}

	p.opts.Metrics.customTimingStarted(category)
	return ct
}

// AddCustomLink attaches a named link to the session.
func (p *Profiler) AddCustomLink(name, url string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CustomLinks == nil {
		p.CustomLinks = make(map[string]string)
	}
	p.CustomLinks[name] = url
}

// AddProfilerResults grafts the root of a stopped session, for example one returned
// by a downstream service, under the active timing for ctx. It returns false when
// nothing was added.
func (p *Profiler) AddProfilerResults(ctx context.Context, external *Profiler) bool {
	if p == nil || external == nil || external.Root == nil || external == p {
		return false
	}
	if external.IsActive() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return false
	}

	root := external.Root
	parent := p.openAncestorLocked(p.contextHeadLocked(ctx))
	for parent != nil && !parent.appendChild(root) {
		parent = p.openAncestorLocked(p.timings[parent.ParentTimingID])
	}
	if parent == nil {
		return false
	}

	base := root.Depth
	root.walk(func(t *Timing) {
		if t != root {
			t.Depth += base
		}
		p.timings[t.ID] = t
	})
	return true
}

// Stop stops every timing still open, finalizes the tree and saves the session unless
// discardResults is set. It returns false when the session was already stopped. A
// storage failure is returned as a *StorageError; the finalized tree stays valid.
func (p *Profiler) Stop(ctx context.Context, discardResults bool) (bool, error) {
	if p == nil {
		return false, nil
	}

	p.mu.Lock()
	if p.state != StateActive {
		p.mu.Unlock()
		return false, nil
	}
	p.state = StateStopped
	open := make([]*Timing, 0, len(p.timings))
	for _, t := range p.timings {
		open = append(open, t)
	}
	p.mu.Unlock()

	// Deepest first so every parent outlasts its children.
	sort.SliceStable(open, func(i, j int) bool { return open[i].Depth > open[j].Depth })
	for _, t := range open {
		_, customs := t.snapshot()
		for _, ct := range customs {
			ct.Stop()
		}
	}
	for _, t := range open {
		t.Stop()
	}

	duplicates := p.finalize()

	p.mu.Lock()
	p.head = nil
	d := durationOf(p.Root.DurationMilliseconds)
	p.DurationMilliseconds = &d
	p.mu.Unlock()

	m := p.opts.Metrics
	m.duplicatesFound(duplicates)
	p.opts.Logger.Debug("profiler stopped",
		"profiler_id", p.ID,
		"name", p.Name,
		"duration_ms", d,
		"discard", discardResults,
	)

	if discardResults || p.opts.Storage == nil {
		m.sessionStopped("discarded", d)
		return true, nil
	}

	if err := p.save(ctx); err != nil {
		m.sessionStopped("failed", d)
		p.opts.Logger.Warn("failed to save profiler", "profiler_id", p.ID, "error", err)
		return true, err
	}
	m.sessionStopped("saved", d)
	return true, nil
}

// StopAsync runs Stop on a new goroutine and delivers its result on the returned
// channel, which is closed afterwards.
func (p *Profiler) StopAsync(ctx context.Context, discardResults bool) <-chan StopResult {
	ch := make(chan StopResult, 1)
	go func() {
		defer close(ch)
		stopped, err := p.Stop(ctx, discardResults)
		ch <- StopResult{Stopped: stopped, Err: err}
	}()
	return ch
}

// save persists the session, then establishes and caps the user's unviewed list.
func (p *Profiler) save(ctx context.Context) error {
	s := p.opts.Storage
	if err := s.Save(ctx, p); err != nil {
		p.opts.Metrics.storageFailed("save")
		return wrapStorageError("save", err)
	}
	if p.HasUserViewed {
		return nil
	}

	if s.SetUnviewedAfterSave() {
		if err := s.SetUnviewed(ctx, p.User, p.ID); err != nil {
			p.opts.Metrics.storageFailed("set_unviewed")
			return wrapStorageError("set_unviewed", err)
		}
	}

	if p.opts.MaxUnviewedProfiles <= 0 {
		return nil
	}
	ids, err := s.GetUnviewedIDs(ctx, p.User)
	if err != nil {
		p.opts.Metrics.storageFailed("get_unviewed_ids")
		return wrapStorageError("get_unviewed_ids", err)
	}
	for len(ids) > p.opts.MaxUnviewedProfiles {
		if err := s.SetViewed(ctx, p.User, ids[0]); err != nil {
			p.opts.Metrics.storageFailed("set_viewed")
			return wrapStorageError("set_viewed", err)
		}
		ids = ids[1:]
	}
	return nil
}

// Timings returns every timing of the tree, parents before children.
func (p *Profiler) Timings() []*Timing {
	if p == nil {
		return nil
	}
	var out []*Timing
	p.Root.walk(func(t *Timing) { out = append(out, t) })
	return out
}

// CustomTimingStats summarises custom timings by category across the whole tree.
func (p *Profiler) CustomTimingStats() map[string]CategoryStats {
	stats := make(map[string]CategoryStats)
	for _, t := range p.Timings() {
		_, customs := t.snapshot()
		for _, ct := range customs {
			ct.mu.Lock()
			s := stats[ct.Category]
			s.Count++
			s.DurationMilliseconds = roundTenths(s.DurationMilliseconds + durationOf(ct.DurationMilliseconds))
			if ct.IsDuplicate {
				s.Duplicates++
			}
			if ct.Errored {
				s.Errors++
			}
			stats[ct.Category] = s
			ct.mu.Unlock()
		}
	}
	return stats
}

// Logger returns the session's logger with its id attached.
func (p *Profiler) Logger() *slog.Logger {
	if p == nil {
		return slog.Default()
	}
	if p.opts.Logger == nil {
		return slog.Default().With("component", "profiler", "profiler_id", p.ID)
	}
	return p.opts.Logger.With("profiler_id", p.ID)
}

func (p *Profiler) lookup(id string) *Timing {
	if id == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timings[id]
}

// contextHeadLocked returns the timing ctx marks as active, if it belongs to p,
// falling back to the session head.
func (p *Profiler) contextHeadLocked(ctx context.Context) *Timing {
	if ctx != nil {
		if h, ok := ctx.Value(headKey{}).(*Timing); ok && h != nil && p.timings[h.ID] == h {
			return h
		}
	}
	return p.head
}

// openAncestorLocked returns t or its nearest ancestor that is still open.
func (p *Profiler) openAncestorLocked(t *Timing) *Timing {
	for t != nil && t.isStopped() {
		t = p.timings[t.ParentTimingID]
	}
	return t
}

func (p *Profiler) timingStopped(t *Timing, discarded bool) {
	p.mu.Lock()
	parent := p.timings[t.ParentTimingID]
	if p.head == t {
		p.head = parent
	}
	p.mu.Unlock()

	if parent != nil && discarded {
		parent.removeChild(t)
	}
}

func (p *Profiler) millisecondsSince(startTicks int64) float64 {
	return p.millisecondsBetween(startTicks, p.clock.Now())
}

func (p *Profiler) millisecondsBetween(from, to int64) float64 {
	return clock.ToMilliseconds(to-from, p.clock.TicksPerMillisecond())
}

func wrapStorageError(operation string, err error) error {
	if se, ok := err.(*StorageError); ok {
		return se
	}
	return NewStorageError("unknown", operation, err)
}
