package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	resetSingleton(t)
	path := writeConfig(t, "storage:\n  backend: memory\n")
	SetConfig(Default())

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(cfg *Config) { changes <- cfg }, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	if err := os.WriteFile(path, []byte("storage:\n  backend: none\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Storage.Backend != "none" {
			t.Errorf("expected reloaded backend none, got %q", cfg.Storage.Backend)
		}
		if GetConfig() != cfg {
			t.Error("expected the singleton to be swapped")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Watch returned error: %v", err)
	}
}

func TestWatcher_InvalidReloadKeepsConfig(t *testing.T) {
	resetSingleton(t)
	path := writeConfig(t, "storage:\n  backend: memory\n")
	original := Default()
	SetConfig(original)

	var calls atomic.Int32
	w, err := NewWatcher(path, 10*time.Millisecond, func(*Config) { calls.Add(1) }, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.reload()
	if calls.Load() != 1 {
		t.Fatalf("expected one successful reload, got %d", calls.Load())
	}
	reloaded := GetConfig()

	os.WriteFile(path, []byte("storage:\n  backend: redis\n"), 0644)
	w.reload()
	if calls.Load() != 1 || GetConfig() != reloaded {
		t.Error("expected invalid config to be ignored")
	}
	w.Stop()
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	if _, err := NewWatcher("/does/not/exist/stopwatch.yaml", 0, nil, nil); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var fired atomic.Int32
	var last atomic.Int32

	for i := 1; i <= 5; i++ {
		n := int32(i)
		d.Trigger(func() {
			fired.Add(1)
			last.Store(n)
		})
	}
	time.Sleep(200 * time.Millisecond)

	if fired.Load() != 1 {
		t.Errorf("expected a single callback, got %d", fired.Load())
	}
	if last.Load() != 5 {
		t.Errorf("expected the latest callback to run, got %d", last.Load())
	}

	d.Stop()
	d.Trigger(func() { fired.Add(1) })
	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 1 {
		t.Error("expected triggers after Stop to be ignored")
	}
}
