package profiler

import (
	"regexp"
	"sort"
	"strings"
)

// finalizer classifies and prunes a stopped tree in one bottom-up pass.
type finalizer struct {
	threshold        float64
	showWithChildren bool
	prune            bool

	timings int
	trivial int
}

// finalize marks duplicate custom timings, computes derived flags on every timing and
// prunes trivial ones. It returns the number of duplicates per category and must only
// run on a stopped session.
//
// Duplicates are marked on the unpruned tree. Custom timings of a pruned timing move to
// the surviving parent, so pruning never loses a recorded command.
func (p *Profiler) finalize() map[string]int {
	f := &finalizer{
		threshold:        p.opts.TrivialDurationThresholdMilliseconds,
		showWithChildren: p.opts.ShowTrivialWithChildren,
		prune:            p.opts.PruneTrivialTimings,
	}
	duplicates := markDuplicates(p.Root, &p.opts)
	f.visit(p.Root, true)
	propagateDuplicates(p.Root)

	p.mu.Lock()
	p.HasTrivialTimings = f.trivial > 0
	p.HasAllTrivialTimings = f.timings > 0 && f.trivial == f.timings
	p.HasDuplicateCustomTimings = p.Root.HasDuplicateCustomTimings
	p.mu.Unlock()
	return duplicates
}

func (f *finalizer) visit(t *Timing, isRoot bool) {
	snap, _ := t.snapshot()
	children := snap[:0]
	for _, c := range snap {
		// A StepIf timing may still be listed if its removal raced with Stop.
		if c.isDiscarded() {
			continue
		}
		f.visit(c, false)
		children = append(children, c)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	d := durationOf(t.DurationMilliseconds)
	short := !isRoot && d < f.threshold
	// Whether a short timing is kept depends on the children it had before pruning.
	keepForChildren := len(children) > 0 && (f.showWithChildren || t.keepIfChildren)
	t.IsTrivial = short && !keepForChildren

	kept := make([]*Timing, 0, len(children))
	var childTotal float64
	for _, c := range children {
		if f.prune && c.IsTrivial {
			t.adoptCustomTimingsLocked(c)
			continue
		}
		kept = append(kept, c)
		childTotal += durationOf(c.DurationMilliseconds)
	}

	if len(kept) == 0 {
		t.Children = nil
	} else {
		t.Children = kept
	}
	t.HasChildren = len(kept) > 0
	t.HasCustomTimings = len(t.CustomTimings) > 0

	self := roundTenths(d - childTotal)
	if self < 0 {
		// Parallel children can overlap and sum past their parent.
		self = 0
	}
	t.DurationWithoutChildrenMilliseconds = self

	if !isRoot {
		f.timings++
		if t.IsTrivial {
			f.trivial++
		}
	}
}

// adoptCustomTimingsLocked moves the custom timings of pruned and its descendants to t,
// keeping each category ordered by start. The caller holds t.mu.
func (t *Timing) adoptCustomTimingsLocked(pruned *Timing) {
	var moved []*CustomTiming
	pruned.walk(func(n *Timing) {
		_, customs := n.snapshot()
		moved = append(moved, customs...)
	})
	if len(moved) == 0 {
		return
	}

	if t.CustomTimings == nil {
		t.CustomTimings = make(map[string][]*CustomTiming)
	}
	touched := make(map[string]struct{})
	for _, ct := range moved {
		ct.mu.Lock()
		ct.ParentTimingID = t.ID
		ct.mu.Unlock()
		t.CustomTimings[ct.Category] = append(t.CustomTimings[ct.Category], ct)
		touched[ct.Category] = struct{}{}
	}
	for category := range touched {
		list := t.CustomTimings[category]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].StartMilliseconds < list[j].StartMilliseconds
		})
	}
}

type duplicateKey struct {
	category string
	command  string
}

// markDuplicates flags every custom timing whose category and command match an earlier
// one anywhere in the tree.
func markDuplicates(root *Timing, o *Options) map[string]int {
	var all []*CustomTiming
	root.walk(func(t *Timing) {
		_, customs := t.snapshot()
		all = append(all, customs...)
	})

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].StartMilliseconds < all[j].StartMilliseconds
	})

	counts := make(map[string]int)
	seen := make(map[duplicateKey]struct{}, len(all))
	for _, ct := range all {
		ct.mu.Lock()
		ct.IsDuplicate = false
		if ct.CommandString != "" && !o.ignoresExecuteType(ct.ExecuteType) {
			key := duplicateKey{category: ct.Category, command: ct.CommandString}
			if o.NormalizeDuplicateCommands {
				key.command = NormalizeCommand(ct.CommandString)
			}
			if _, ok := seen[key]; ok {
				ct.IsDuplicate = true
				counts[ct.Category]++
			} else {
				seen[key] = struct{}{}
			}
		}
		ct.mu.Unlock()
	}
	return counts
}

func propagateDuplicates(t *Timing) bool {
	children, customs := t.snapshot()
	found := false
	for _, ct := range customs {
		ct.mu.Lock()
		if ct.IsDuplicate {
			found = true
		}
		ct.mu.Unlock()
	}
	for _, c := range children {
		if propagateDuplicates(c) {
			found = true
		}
	}

	t.mu.Lock()
	t.HasDuplicateCustomTimings = found
	t.mu.Unlock()
	return found
}

var (
	quotedLiteral  = regexp.MustCompile(`'(?:[^']|'')*'`)
	numericLiteral = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// NormalizeCommand replaces quoted strings and numbers in a command with "?" and
// collapses whitespace.
func NormalizeCommand(command string) string {
	s := quotedLiteral.ReplaceAllString(command, "?")
	s = numericLiteral.ReplaceAllString(s, "?")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
