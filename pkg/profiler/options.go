package profiler

import (
	"log/slog"
	"os"

	"mercator-hq/stopwatch/pkg/profiler/clock"
)

// Options controls how sessions are timed, finalized and persisted.
//
// Options are copied when a session starts; changing them afterwards has no effect on
// sessions already running.
type Options struct {
	// Storage receives every stopped session that is not discarded.
	// Nil disables persistence.
	Storage Storage

	// ClockFactory creates the clock for each new session.
	// Default: clock.System
	ClockFactory clock.Factory

	// TrivialDurationThresholdMilliseconds is the duration below which a timing is
	// considered trivial.
	// Default: 2.0
	TrivialDurationThresholdMilliseconds float64

	// ShowTrivialWithChildren keeps short timings that have children. When false, a
	// short timing with children is trivial unless it was opened with keepIfChildren.
	// Default: true
	ShowTrivialWithChildren bool

	// PruneTrivialTimings removes trivial timings from the finalized tree.
	// Default: true
	PruneTrivialTimings bool

	// NormalizeDuplicateCommands replaces literal values in command text before
	// duplicate grouping, so "id = 1" and "id = 2" count as the same command.
	// Default: false
	NormalizeDuplicateCommands bool

	// IgnoredDuplicateExecuteTypes lists execute types that never count as duplicates.
	// Default: ["Open", "OpenAsync"]
	IgnoredDuplicateExecuteTypes []string

	// MaxUnviewedProfiles caps the number of unviewed sessions kept per user; the
	// oldest are marked viewed after each save. Zero disables the cap.
	// Default: 20
	MaxUnviewedProfiles int

	// MachineName is recorded on every session.
	// Default: os.Hostname()
	MachineName string

	// Logger receives lifecycle and storage failure logs.
	// Default: slog.Default() with component=profiler
	Logger *slog.Logger

	// Metrics records session counters. Nil disables metrics.
	Metrics *Metrics
}

// DefaultOptions returns Options with every default applied and no storage.
func DefaultOptions() *Options {
	return &Options{
		ClockFactory:                         clock.System,
		TrivialDurationThresholdMilliseconds: 2.0,
		ShowTrivialWithChildren:              true,
		PruneTrivialTimings:                  true,
		IgnoredDuplicateExecuteTypes:         []string{"Open", "OpenAsync"},
		MaxUnviewedProfiles:                  20,
	}
}

// resolve returns a copy of o with unset fields filled in. A nil receiver yields
// DefaultOptions.
func (o *Options) resolve() Options {
	if o == nil {
		o = DefaultOptions()
	}
	r := *o
	r.IgnoredDuplicateExecuteTypes = append([]string(nil), o.IgnoredDuplicateExecuteTypes...)

	if r.ClockFactory == nil {
		r.ClockFactory = clock.System
	}
	if r.TrivialDurationThresholdMilliseconds < 0 {
		r.TrivialDurationThresholdMilliseconds = 0
	}
	if r.MaxUnviewedProfiles < 0 {
		r.MaxUnviewedProfiles = 0
	}
	if r.MachineName == "" {
		if host, err := os.Hostname(); err == nil {
			r.MachineName = host
		}
	}
	if r.Logger == nil {
		r.Logger = slog.Default().With("component", "profiler")
	}
	return r
}

func (o *Options) ignoresExecuteType(executeType string) bool {
	for _, t := range o.IgnoredDuplicateExecuteTypes {
		if t == executeType {
			return true
		}
	}
	return false
}
