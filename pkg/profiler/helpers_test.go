package profiler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/stopwatch/pkg/profiler/clock"
)

func testOptions(clk *clock.Manual) *Options {
	opts := DefaultOptions()
	opts.ClockFactory = func() clock.Clock { return clk }
	opts.MachineName = "test-host"
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return opts
}

func startTest(name string, opts *Options) (context.Context, *Profiler) {
	return Start(context.Background(), name, opts)
}

func ms(t *Timing) float64 {
	d, _ := t.Duration()
	return d
}

func childNamed(t *Timing, name string) *Timing {
	for _, c := range t.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// recordingStorage keeps calls in memory so lifecycle tests can inspect them.
type recordingStorage struct {
	mu             sync.Mutex
	saved          []*Profiler
	unviewed       map[string][]string
	viewed         []string
	afterSave      bool
	saveErr        error
	setUnviewedErr error
}

func newRecordingStorage(afterSave bool) *recordingStorage {
	return &recordingStorage{afterSave: afterSave, unviewed: make(map[string][]string)}
}

func (s *recordingStorage) Save(ctx context.Context, p *Profiler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, p)
	if !s.afterSave {
		s.unviewed[p.User] = append(s.unviewed[p.User], p.ID)
	}
	return nil
}

func (s *recordingStorage) Load(ctx context.Context, id string) (*Profiler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.saved {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (s *recordingStorage) List(ctx context.Context, maxResults int, start, finish time.Time, order ListOrder) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (s *recordingStorage) SetUnviewed(ctx context.Context, user, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setUnviewedErr != nil {
		return s.setUnviewedErr
	}
	s.unviewed[user] = append(s.unviewed[user], id)
	return nil
}

func (s *recordingStorage) SetViewed(ctx context.Context, user, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewed = append(s.viewed, id)
	list := s.unviewed[user]
	for i, v := range list {
		if v == id {
			s.unviewed[user] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (s *recordingStorage) GetUnviewedIDs(ctx context.Context, user string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.unviewed[user]...), nil
}

func (s *recordingStorage) SetUnviewedAfterSave() bool {
	return s.afterSave
}
