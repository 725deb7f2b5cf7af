package storage

import (
	"context"
	"testing"
	"time"

	"mercator-hq/stopwatch/pkg/profiler"
	"mercator-hq/stopwatch/pkg/profiler/clock"
)

func newTestMemory(t *testing.T, cfg MemoryConfig) *MemoryStorage {
	t.Helper()
	m, err := NewMemoryStorageWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewMemoryStorageWithConfig failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMemoryStorage_SaveLoad(t *testing.T) {
	m := newTestMemory(t, DefaultMemoryConfig())
	ctx := context.Background()
	p := sampleProfiler(t, "GET /orders", "alice")

	if err := m.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := m.Load(ctx, p.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSameTree(t, p, loaded)

	if loaded == p || loaded.Root == p.Root {
		t.Error("Expected Load to return a copy")
	}
}

func TestMemoryStorage_LoadMissing(t *testing.T) {
	m := newTestMemory(t, DefaultMemoryConfig())

	loaded, err := m.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != nil {
		t.Error("Expected nil for unknown id")
	}
}

func TestMemoryStorage_SaveIdempotent(t *testing.T) {
	m := newTestMemory(t, DefaultMemoryConfig())
	ctx := context.Background()
	p := sampleProfiler(t, "GET /", "alice")

	for i := 0; i < 3; i++ {
		if err := m.Save(ctx, p); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	ids, _ := m.List(ctx, 0, time.Time{}, time.Time{}, profiler.Descending)
	if len(ids) != 1 {
		t.Errorf("Expected 1 listed session, got %d", len(ids))
	}
	if n, _ := m.Count(ctx); n != 1 {
		t.Errorf("Expected count 1, got %d", n)
	}
}

func TestMemoryStorage_List(t *testing.T) {
	m := newTestMemory(t, DefaultMemoryConfig())
	ctx := context.Background()
	base := time.Date(2025, 11, 16, 10, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 5; i++ {
		p := sampleAt(t, "req", base.Add(time.Duration(i)*time.Minute))
		if err := m.Save(ctx, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		ids = append(ids, p.ID)
	}

	tests := []struct {
		name   string
		max    int
		start  time.Time
		finish time.Time
		order  profiler.ListOrder
		want   []string
	}{
		{"all descending", 0, time.Time{}, time.Time{}, profiler.Descending, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}},
		{"limit ascending", 2, time.Time{}, time.Time{}, profiler.Ascending, []string{ids[0], ids[1]}},
		{"window", 0, base.Add(time.Minute), base.Add(3 * time.Minute), profiler.Ascending, []string{ids[1], ids[2], ids[3]}},
		{"window limit descending", 1, base.Add(time.Minute), base.Add(3 * time.Minute), profiler.Descending, []string{ids[3]}},
		{"empty window", 0, base.Add(time.Hour), time.Time{}, profiler.Ascending, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.List(ctx, tt.max, tt.start, tt.finish, tt.order)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

func TestMemoryStorage_ViewTracking(t *testing.T) {
	m := newTestMemory(t, DefaultMemoryConfig())
	ctx := context.Background()
	p := sampleProfiler(t, "GET /", "alice")

	if !m.SetUnviewedAfterSave() {
		t.Fatal("Expected memory storage to need a follow-up SetUnviewed")
	}
	if err := m.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := m.SetUnviewed(ctx, "alice", p.ID); err != nil {
		t.Fatalf("SetUnviewed failed: %v", err)
	}
	m.SetUnviewed(ctx, "alice", p.ID)

	ids, _ := m.GetUnviewedIDs(ctx, "alice")
	if len(ids) != 1 || ids[0] != p.ID {
		t.Fatalf("Expected [%s], got %v", p.ID, ids)
	}
	loaded, _ := m.Load(ctx, p.ID)
	if loaded.HasUserViewed {
		t.Error("Expected loaded session to be unviewed")
	}

	if err := m.SetViewed(ctx, "alice", p.ID); err != nil {
		t.Fatalf("SetViewed failed: %v", err)
	}
	ids, _ = m.GetUnviewedIDs(ctx, "alice")
	if len(ids) != 0 {
		t.Errorf("Expected no unviewed ids, got %v", ids)
	}
	loaded, _ = m.Load(ctx, p.ID)
	if !loaded.HasUserViewed {
		t.Error("Expected loaded session to be viewed")
	}

	if ids, _ := m.GetUnviewedIDs(ctx, "bob"); len(ids) != 0 {
		t.Errorf("Expected no unviewed ids for bob, got %v", ids)
	}
}

func TestMemoryStorage_SessionLifecycle(t *testing.T) {
	m := newTestMemory(t, DefaultMemoryConfig())
	clk := clock.NewManual(1)
	opts := testOptions(clk)
	opts.Storage = m

	var last string
	for i := 0; i < 3; i++ {
		ctx, p := profiler.Start(profiler.WithUser(context.Background(), "carol"), "req", opts)
		clk.Advance(5)
		if _, err := p.Stop(ctx, false); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
		last = p.ID
	}

	ids, _ := m.GetUnviewedIDs(context.Background(), "carol")
	if len(ids) != 3 || ids[2] != last {
		t.Errorf("Expected 3 unviewed ids ending with %s, got %v", last, ids)
	}
}

func TestMemoryStorage_Expiry(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{CacheDuration: 10 * time.Millisecond, CleanupInterval: time.Hour})
	ctx := context.Background()
	p := sampleProfiler(t, "GET /", "alice")

	if err := m.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	m.SetUnviewed(ctx, "alice", p.ID)
	time.Sleep(100 * time.Millisecond)

	loaded, err := m.Load(ctx, p.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != nil {
		t.Error("Expected expired session to be gone")
	}
	if ids, _ := m.GetUnviewedIDs(ctx, "alice"); len(ids) != 0 {
		t.Errorf("Expected expired session to leave the unviewed list, got %v", ids)
	}
}

func TestMemoryStorage_Cleanup(t *testing.T) {
	m := newTestMemory(t, DefaultMemoryConfig())
	ctx := context.Background()
	now := time.Now()
	m.now = func() time.Time { return now }

	p := sampleProfiler(t, "GET /", "alice")
	m.Save(ctx, p)

	if n := m.Cleanup(); n != 0 {
		t.Errorf("Expected nothing to clean up, got %d", n)
	}
	now = now.Add(2 * time.Hour)
	if n := m.Cleanup(); n != 1 {
		t.Errorf("Expected 1 expired session, got %d", n)
	}
	if n, _ := m.Count(ctx); n != 0 {
		t.Errorf("Expected empty index, got %d", n)
	}
}

func TestMemoryStorage_Retention(t *testing.T) {
	m := newTestMemory(t, DefaultMemoryConfig())
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 6; i++ {
		p := sampleAt(t, "req", base.Add(time.Duration(i)*time.Hour))
		m.Save(ctx, p)
		ids = append(ids, p.ID)
	}

	deleted, err := m.DeleteBefore(ctx, base.Add(2*time.Hour))
	if err != nil || deleted != 2 {
		t.Fatalf("Expected 2 deleted, got %d (%v)", deleted, err)
	}
	deleted, err = m.DeleteOldest(ctx, 1)
	if err != nil || deleted != 1 {
		t.Fatalf("Expected 1 deleted, got %d (%v)", deleted, err)
	}
	if n, _ := m.Count(ctx); n != 3 {
		t.Errorf("Expected 3 remaining, got %d", n)
	}
	if loaded, _ := m.Load(ctx, ids[2]); loaded != nil {
		t.Error("Expected oldest remaining session to be deleted")
	}
	if loaded, _ := m.Load(ctx, ids[3]); loaded == nil {
		t.Error("Expected newer session to survive")
	}
}

func TestMemoryStorage_CanceledContext(t *testing.T) {
	m := newTestMemory(t, DefaultMemoryConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Save(ctx, sampleProfiler(t, "x", "y")); err == nil {
		t.Error("Expected error for canceled context")
	}
	if _, err := m.Load(ctx, "x"); err == nil {
		t.Error("Expected error for canceled context")
	}
}
