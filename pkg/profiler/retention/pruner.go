package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Prunable is a session store that supports retention.
type Prunable interface {
	// DeleteBefore removes sessions started before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int64, error)
	// DeleteOldest removes the n oldest sessions.
	DeleteOldest(ctx context.Context, n int64) (int64, error)
}

// Config contains configuration for the retention pruner.
type Config struct {
	// MaxAge is how long sessions are kept. 0 keeps them forever.
	MaxAge time.Duration

	// MaxCount is the maximum number of stored sessions. 0 means unlimited.
	MaxCount int64

	// Schedule is a cron expression for background pruning.
	// Example: "*/15 * * * *" (every 15 minutes)
	Schedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAge:   24 * time.Hour,
		MaxCount: 0,
		Schedule: "0 * * * *",
	}
}

// Result reports what one pruning pass deleted.
type Result struct {
	DeletedByAge   int64
	DeletedByCount int64
}

// Total returns the number of sessions deleted.
func (r Result) Total() int64 {
	return r.DeletedByAge + r.DeletedByCount
}

// Observer is told about every pruning pass, successful or not.
type Observer func(res Result, elapsed time.Duration, err error)

// Pruner enforces the retention policy on a store.
type Pruner struct {
	store     Prunable
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	observer  Observer
	now       func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(store Prunable, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	pruner := &Pruner{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "profiler.retention"),
		now:    time.Now,
	}
	pruner.scheduler = NewScheduler(pruner)
	return pruner
}

// Start runs Prune on the configured schedule until ctx is done or Stop is called.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the scheduler and waits for a running pass to finish.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled pruning time, or nil when not scheduled.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}

// SetObserver registers o to receive the outcome of each pass. Call it before Start.
func (p *Pruner) SetObserver(o Observer) {
	p.observer = o
}

// Prune deletes sessions older than MaxAge, then the oldest sessions beyond MaxCount.
func (p *Pruner) Prune(ctx context.Context) (Result, error) {
	start := time.Now()
	res, err := p.prune(ctx)
	if p.observer != nil {
		p.observer(res, time.Since(start), err)
	}
	return res, err
}

func (p *Pruner) prune(ctx context.Context) (Result, error) {
	var res Result

	if p.config.MaxAge > 0 {
		cutoff := p.now().Add(-p.config.MaxAge)
		deleted, err := p.store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("prune by age failed: %w", err)
		}
		res.DeletedByAge = deleted
		p.logger.Debug("pruned sessions by age",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
		)
	}

	if p.config.MaxCount > 0 {
		count, err := p.store.Count(ctx)
		if err != nil {
			return res, fmt.Errorf("failed to count sessions: %w", err)
		}
		if count > p.config.MaxCount {
			deleted, err := p.store.DeleteOldest(ctx, count-p.config.MaxCount)
			if err != nil {
				return res, fmt.Errorf("prune by count failed: %w", err)
			}
			res.DeletedByCount = deleted
			p.logger.Debug("pruned sessions by count",
				"deleted_count", deleted,
				"max_count", p.config.MaxCount,
			)
		}
	}

	if res.Total() > 0 {
		p.logger.Info("session pruning completed",
			"deleted_by_age", res.DeletedByAge,
			"deleted_by_count", res.DeletedByCount,
		)
	}
	return res, nil
}
