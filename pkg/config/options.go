package config

import (
	"mercator-hq/stopwatch/pkg/profiler"
)

// Options converts the profiler section into session options. Storage, Logger and
// Metrics are left for the caller to wire.
func (c ProfilerConfig) Options() *profiler.Options {
	opts := profiler.DefaultOptions()
	opts.TrivialDurationThresholdMilliseconds = c.TrivialDurationThresholdMilliseconds
	opts.ShowTrivialWithChildren = c.ShowTrivialWithChildren
	opts.PruneTrivialTimings = c.PruneTrivialTimings
	opts.NormalizeDuplicateCommands = c.NormalizeDuplicateCommands
	opts.IgnoredDuplicateExecuteTypes = append([]string(nil), c.IgnoredDuplicateExecuteTypes...)
	opts.MaxUnviewedProfiles = c.MaxUnviewedProfiles
	opts.MachineName = c.MachineName
	return opts
}
