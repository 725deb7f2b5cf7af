package profiler

import (
	"testing"

	"mercator-hq/stopwatch/pkg/profiler/clock"
)

func TestDuplicateDetection(t *testing.T) {
	clk := clock.NewManual(1)
	ctx, p := startTest("root", testOptions(clk))

	aCtx, a := p.Step(ctx, "a")
	first := p.CustomTiming(aCtx, "sql", "SELECT * FROM users", ExecuteTypeReader)
	clk.Advance(2)
	first.Stop()
	other := p.CustomTiming(aCtx, "sql", "SELECT * FROM orders", ExecuteTypeReader)
	clk.Advance(2)
	other.Stop()
	a.Stop()

	bCtx, b := p.Step(ctx, "b")
	second := p.CustomTiming(bCtx, "sql", "SELECT * FROM users", ExecuteTypeReader)
	clk.Advance(2)
	second.Stop()
	third := p.CustomTiming(bCtx, "sql", "SELECT * FROM users", ExecuteTypeReader)
	clk.Advance(2)
	third.Stop()
	sameTextOtherCategory := p.CustomTiming(bCtx, "cache", "SELECT * FROM users", "Get")
	clk.Advance(2)
	sameTextOtherCategory.Stop()
	b.Stop()

	p.Stop(ctx, true)

	if first.IsDuplicate {
		t.Error("Expected earliest occurrence not to be a duplicate")
	}
	if !second.IsDuplicate || !third.IsDuplicate {
		t.Error("Expected later occurrences to be duplicates")
	}
	if other.IsDuplicate || sameTextOtherCategory.IsDuplicate {
		t.Error("Expected distinct commands and categories not to be duplicates")
	}
	if a.HasDuplicateCustomTimings {
		t.Error("Expected step a to hold no duplicates")
	}
	if !b.HasDuplicateCustomTimings {
		t.Error("Expected step b to hold duplicates")
	}
	if !p.Root.HasDuplicateCustomTimings || !p.HasDuplicateCustomTimings {
		t.Error("Expected duplicates to propagate to the root and session")
	}
}

func TestDuplicateCount(t *testing.T) {
	clk := clock.NewManual(1)
	ctx, p := startTest("root", testOptions(clk))

	const n = 7
	var all []*CustomTiming
	for i := 0; i < n; i++ {
		stepCtx, s := p.Step(ctx, "loop")
		ct := p.CustomTiming(stepCtx, "sql", "SELECT 1", ExecuteTypeScalar)
		clk.Advance(3)
		ct.Stop()
		s.Stop()
		all = append(all, ct)
	}
	p.Stop(ctx, true)

	dups := 0
	for _, ct := range all {
		if ct.IsDuplicate {
			dups++
		}
	}
	if dups != n-1 {
		t.Errorf("Expected %d duplicates, got %d", n-1, dups)
	}
	if all[0].IsDuplicate {
		t.Error("Expected earliest timing not to be a duplicate")
	}
}

func TestDuplicateNormalization(t *testing.T) {
	tests := []struct {
		name      string
		normalize bool
		wantDup   bool
	}{
		{"exact text differs", false, false},
		{"normalized literals match", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewManual(1)
			opts := testOptions(clk)
			opts.NormalizeDuplicateCommands = tt.normalize
			ctx, p := startTest("root", opts)

			first := p.CustomTiming(ctx, "sql", "SELECT * FROM users WHERE id = 1 AND name = 'bob'", ExecuteTypeReader)
			clk.Advance(1)
			first.Stop()
			second := p.CustomTiming(ctx, "sql", "SELECT * FROM users  WHERE id = 42 AND name = 'alice'", ExecuteTypeReader)
			clk.Advance(1)
			second.Stop()
			p.Stop(ctx, true)

			if second.IsDuplicate != tt.wantDup {
				t.Errorf("Expected IsDuplicate %v, got %v", tt.wantDup, second.IsDuplicate)
			}
			if first.IsDuplicate {
				t.Error("Expected first timing never to be a duplicate")
			}
		})
	}
}

func TestDuplicateIgnoredExecuteTypes(t *testing.T) {
	clk := clock.NewManual(1)
	ctx, p := startTest("root", testOptions(clk))

	var opens []*CustomTiming
	for i := 0; i < 3; i++ {
		ct := p.CustomTiming(ctx, "sql", "Connection Open()", "Open")
		clk.Advance(1)
		ct.Stop()
		opens = append(opens, ct)
	}
	empty1 := p.CustomTiming(ctx, "sql", "", ExecuteTypeNonQuery)
	empty1.Stop()
	empty2 := p.CustomTiming(ctx, "sql", "", ExecuteTypeNonQuery)
	empty2.Stop()
	p.Stop(ctx, true)

	for _, ct := range opens {
		if ct.IsDuplicate {
			t.Error("Expected ignored execute type never to be a duplicate")
		}
	}
	if empty2.IsDuplicate {
		t.Error("Expected empty commands never to be duplicates")
	}
	if p.HasDuplicateCustomTimings {
		t.Error("Expected session without duplicates")
	}
}

func TestNormalizeCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT * FROM t WHERE id = 10", "SELECT * FROM t WHERE id = ?"},
		{"SELECT * FROM t WHERE name = 'O''Brien'", "SELECT * FROM t WHERE name = ?"},
		{"SELECT  a,\n b FROM table1 WHERE x > 3.5", "SELECT a, b FROM table1 WHERE x > ?"},
		{"GET /users", "GET /users"},
	}

	for _, tt := range tests {
		if got := NormalizeCommand(tt.in); got != tt.want {
			t.Errorf("NormalizeCommand(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestCustomTimingFirstResult(t *testing.T) {
	clk := clock.NewManual(1)
	ctx, p := startTest("root", testOptions(clk))

	ct := p.CustomTiming(ctx, "sql", "SELECT * FROM big", ExecuteTypeReader)
	clk.Advance(2)
	ct.MarkFirstResult()
	clk.Advance(3)
	ct.MarkFirstResult()
	ct.Stop()
	p.Stop(ctx, true)

	if ct.FirstFetchDurationMilliseconds == nil || *ct.FirstFetchDurationMilliseconds != 2 {
		t.Errorf("Expected first result at 2ms, got %v", ct.FirstFetchDurationMilliseconds)
	}
	if d, _ := ct.Duration(); d != 5 {
		t.Errorf("Expected total 5ms, got %v", d)
	}
	if ct.ParentTimingID != p.Root.ID {
		t.Errorf("Expected custom timing on root, got parent %s", ct.ParentTimingID)
	}
}

func TestCustomTimingIf(t *testing.T) {
	clk := clock.NewManual(1)
	ctx, p := startTest("root", testOptions(clk))

	short := p.CustomTimingIf(ctx, "cache", "GET a", "Get", 5)
	clk.Advance(2)
	short.Stop()

	long := p.CustomTimingIf(ctx, "cache", "GET b", "Get", 5)
	clk.Advance(6)
	long.Stop()
	p.Stop(ctx, true)

	list := p.Root.CustomTimings["cache"]
	if len(list) != 1 || list[0] != long {
		t.Errorf("Expected only the long timing to be kept, got %d", len(list))
	}
}

func TestCustomTimingIfDropsCategory(t *testing.T) {
	clk := clock.NewManual(1)
	ctx, p := startTest("root", testOptions(clk))

	StartCustomTimingIf(ctx, "cache", "GET a", "Get", 5).Stop()
	p.Stop(ctx, true)

	if p.Root.HasCustomTimings {
		t.Error("Expected no custom timings left on root")
	}
}
