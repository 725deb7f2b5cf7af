package httpprof

import (
	"io"
	"log/slog"
	"testing"

	"mercator-hq/stopwatch/pkg/profiler"
	"mercator-hq/stopwatch/pkg/profiler/storage"
)

func testConfig(t *testing.T) (*Config, *storage.MemoryStorage) {
	t.Helper()
	store, err := storage.NewMemoryStorage()
	if err != nil {
		t.Fatalf("NewMemoryStorage failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := DefaultConfig()
	cfg.Options.Storage = store
	cfg.Options.Logger = logger
	// Test handlers finish in well under the trivial threshold.
	cfg.Options.PruneTrivialTimings = false
	cfg.Logger = logger
	return cfg, store
}

func childNamed(t *profiler.Timing, name string) *profiler.Timing {
	for _, c := range t.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}
