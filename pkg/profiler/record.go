package profiler

import (
	"sort"
	"time"
)

// Record is the persisted shape of a session: the session row, every timing with its
// parent id, and every custom timing with the id of the timing it belongs to.
type Record struct {
	Session       SessionRecord        `json:"session"`
	Timings       []TimingRecord       `json:"timings"`
	CustomTimings []CustomTimingRecord `json:"custom_timings"`
}

// SessionRecord holds the session-level fields of a Record.
type SessionRecord struct {
	ID                                   string            `json:"id"`
	Name                                 string            `json:"name"`
	Started                              time.Time         `json:"started"`
	DurationMilliseconds                 *float64          `json:"duration_ms,omitempty"`
	MachineName                          string            `json:"machine_name,omitempty"`
	User                                 string            `json:"user,omitempty"`
	HasUserViewed                        bool              `json:"has_user_viewed"`
	RootTimingID                         string            `json:"root_timing_id"`
	CustomLinks                          map[string]string `json:"custom_links,omitempty"`
	HasDuplicateCustomTimings            bool              `json:"has_duplicate_custom_timings"`
	HasTrivialTimings                    bool              `json:"has_trivial_timings"`
	HasAllTrivialTimings                 bool              `json:"has_all_trivial_timings"`
	TrivialDurationThresholdMilliseconds float64           `json:"trivial_duration_threshold_ms"`
}

// TimingRecord is one flattened Timing. Position is its index in a depth-first,
// parents-first walk of the tree.
type TimingRecord struct {
	ID                                  string   `json:"id"`
	ParentTimingID                      string   `json:"parent_timing_id,omitempty"`
	Position                            int      `json:"position"`
	Name                                string   `json:"name"`
	Depth                               int      `json:"depth"`
	StartMilliseconds                   float64  `json:"start_ms"`
	DurationMilliseconds                *float64 `json:"duration_ms,omitempty"`
	DurationWithoutChildrenMilliseconds float64  `json:"duration_without_children_ms"`
	HasChildren                         bool     `json:"has_children"`
	HasCustomTimings                    bool     `json:"has_custom_timings"`
	HasDuplicateCustomTimings           bool     `json:"has_duplicate_custom_timings"`
	IsTrivial                           bool     `json:"is_trivial"`
}

// CustomTimingRecord is one flattened CustomTiming. Position orders the records of one
// timing and category.
type CustomTimingRecord struct {
	ID                             string   `json:"id"`
	ParentTimingID                 string   `json:"parent_timing_id"`
	Position                       int      `json:"position"`
	Category                       string   `json:"category"`
	CommandString                  string   `json:"command_string"`
	ExecuteType                    string   `json:"execute_type,omitempty"`
	StartMilliseconds              float64  `json:"start_ms"`
	DurationMilliseconds           *float64 `json:"duration_ms,omitempty"`
	FirstFetchDurationMilliseconds *float64 `json:"first_fetch_duration_ms,omitempty"`
	Errored                        bool     `json:"errored,omitempty"`
	IsDuplicate                    bool     `json:"is_duplicate,omitempty"`
}

// Flatten returns the persisted shape of p.
func (p *Profiler) Flatten() *Record {
	p.mu.Lock()
	rec := &Record{
		Session: SessionRecord{
			ID:                                   p.ID,
			Name:                                 p.Name,
			Started:                              p.Started,
			DurationMilliseconds:                 copyFloat(p.DurationMilliseconds),
			MachineName:                          p.MachineName,
			User:                                 p.User,
			HasUserViewed:                        p.HasUserViewed,
			RootTimingID:                         p.Root.ID,
			CustomLinks:                          copyLinks(p.CustomLinks),
			HasDuplicateCustomTimings:            p.HasDuplicateCustomTimings,
			HasTrivialTimings:                    p.HasTrivialTimings,
			HasAllTrivialTimings:                 p.HasAllTrivialTimings,
			TrivialDurationThresholdMilliseconds: p.TrivialDurationThresholdMilliseconds,
		},
	}
	p.mu.Unlock()

	for i, t := range p.Timings() {
		t.mu.Lock()
		rec.Timings = append(rec.Timings, TimingRecord{
			ID:                                  t.ID,
			ParentTimingID:                      t.ParentTimingID,
			Position:                            i,
			Name:                                t.Name,
			Depth:                               t.Depth,
			StartMilliseconds:                   t.StartMilliseconds,
			DurationMilliseconds:                copyFloat(t.DurationMilliseconds),
			DurationWithoutChildrenMilliseconds: t.DurationWithoutChildrenMilliseconds,
			HasChildren:                         t.HasChildren,
			HasCustomTimings:                    t.HasCustomTimings,
			HasDuplicateCustomTimings:           t.HasDuplicateCustomTimings,
			IsTrivial:                           t.IsTrivial,
		})
		for _, category := range sortedCategories(t.CustomTimings) {
			for j, ct := range t.CustomTimings[category] {
				ct.mu.Lock()
				rec.CustomTimings = append(rec.CustomTimings, CustomTimingRecord{
					ID:                             ct.ID,
					ParentTimingID:                 t.ID,
					Position:                       j,
					Category:                       ct.Category,
					CommandString:                  ct.CommandString,
					ExecuteType:                    ct.ExecuteType,
					StartMilliseconds:              ct.StartMilliseconds,
					DurationMilliseconds:           copyFloat(ct.DurationMilliseconds),
					FirstFetchDurationMilliseconds: copyFloat(ct.FirstFetchDurationMilliseconds),
					Errored:                        ct.Errored,
					IsDuplicate:                    ct.IsDuplicate,
				})
				ct.mu.Unlock()
			}
		}
		t.mu.Unlock()
	}
	return rec
}

// Rebuild regroups a Record into a stopped session. Records may arrive in any order.
func Rebuild(rec *Record) (*Profiler, error) {
	if rec == nil {
		return nil, nil
	}

	p := &Profiler{
		ID:                                   rec.Session.ID,
		Name:                                 rec.Session.Name,
		Started:                              rec.Session.Started,
		DurationMilliseconds:                 copyFloat(rec.Session.DurationMilliseconds),
		MachineName:                          rec.Session.MachineName,
		User:                                 rec.Session.User,
		HasUserViewed:                        rec.Session.HasUserViewed,
		CustomLinks:                          copyLinks(rec.Session.CustomLinks),
		HasDuplicateCustomTimings:            rec.Session.HasDuplicateCustomTimings,
		HasTrivialTimings:                    rec.Session.HasTrivialTimings,
		HasAllTrivialTimings:                 rec.Session.HasAllTrivialTimings,
		TrivialDurationThresholdMilliseconds: rec.Session.TrivialDurationThresholdMilliseconds,
		state:                                StateStopped,
		timings:                              make(map[string]*Timing, len(rec.Timings)),
	}

	timings := append([]TimingRecord(nil), rec.Timings...)
	sort.SliceStable(timings, func(i, j int) bool { return timings[i].Position < timings[j].Position })

	for _, tr := range timings {
		t := &Timing{
			ID:                                  tr.ID,
			ParentTimingID:                      tr.ParentTimingID,
			Name:                                tr.Name,
			Depth:                               tr.Depth,
			StartMilliseconds:                   tr.StartMilliseconds,
			DurationMilliseconds:                copyFloat(tr.DurationMilliseconds),
			DurationWithoutChildrenMilliseconds: tr.DurationWithoutChildrenMilliseconds,
			HasChildren:                         tr.HasChildren,
			HasCustomTimings:                    tr.HasCustomTimings,
			HasDuplicateCustomTimings:           tr.HasDuplicateCustomTimings,
			IsTrivial:                           tr.IsTrivial,
		}
		if _, dup := p.timings[t.ID]; dup {
			return nil, &RecordError{ProfilerID: p.ID, Reason: "duplicate timing id " + t.ID}
		}
		p.timings[t.ID] = t

		if t.ParentTimingID == "" {
			if p.Root != nil {
				return nil, &RecordError{ProfilerID: p.ID, Reason: "more than one root timing"}
			}
			p.Root = t
			continue
		}
		parent, ok := p.timings[t.ParentTimingID]
		if !ok {
			return nil, &RecordError{ProfilerID: p.ID, Reason: "timing " + t.ID + " has unknown parent " + t.ParentTimingID}
		}
		parent.Children = append(parent.Children, t)
	}
	if p.Root == nil {
		return nil, &RecordError{ProfilerID: p.ID, Reason: "no root timing"}
	}
	if rec.Session.RootTimingID != "" && rec.Session.RootTimingID != p.Root.ID {
		return nil, &RecordError{ProfilerID: p.ID, Reason: "root timing id mismatch"}
	}

	customs := append([]CustomTimingRecord(nil), rec.CustomTimings...)
	sort.SliceStable(customs, func(i, j int) bool { return customs[i].Position < customs[j].Position })

	for _, cr := range customs {
		parent, ok := p.timings[cr.ParentTimingID]
		if !ok {
			return nil, &RecordError{ProfilerID: p.ID, Reason: "custom timing " + cr.ID + " has unknown parent " + cr.ParentTimingID}
		}
		if parent.CustomTimings == nil {
			parent.CustomTimings = make(map[string][]*CustomTiming)
		}
		parent.CustomTimings[cr.Category] = append(parent.CustomTimings[cr.Category], &CustomTiming{
			ID:                             cr.ID,
			ParentTimingID:                 cr.ParentTimingID,
			Category:                       cr.Category,
			CommandString:                  cr.CommandString,
			ExecuteType:                    cr.ExecuteType,
			StartMilliseconds:              cr.StartMilliseconds,
			DurationMilliseconds:           copyFloat(cr.DurationMilliseconds),
			FirstFetchDurationMilliseconds: copyFloat(cr.FirstFetchDurationMilliseconds),
			Errored:                        cr.Errored,
			IsDuplicate:                    cr.IsDuplicate,
		})
	}
	return p, nil
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyLinks(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
