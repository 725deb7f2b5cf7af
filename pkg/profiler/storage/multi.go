package storage

import (
	"context"
	"errors"
	"time"

	"mercator-hq/stopwatch/pkg/profiler"
)

// MultiStorage layers several backends, typically a fast cache in front of a
// durable store. Writes go to every backend; reads return the first backend that
// has an answer.
type MultiStorage struct {
	backends []profiler.Storage
}

// NewMultiStorage returns a MultiStorage over backends in lookup order. Nil backends
// are skipped.
func NewMultiStorage(backends ...profiler.Storage) *MultiStorage {
	m := &MultiStorage{}
	for _, b := range backends {
		if b != nil {
			m.backends = append(m.backends, b)
		}
	}
	return m
}

// Backends returns the layered backends in lookup order.
func (m *MultiStorage) Backends() []profiler.Storage {
	return m.backends
}

// Save writes p to every backend and joins their errors.
func (m *MultiStorage) Save(ctx context.Context, p *profiler.Profiler) error {
	var errs []error
	for _, b := range m.backends {
		if err := b.Save(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load returns the session from the first backend that has it.
func (m *MultiStorage) Load(ctx context.Context, id string) (*profiler.Profiler, error) {
	var errs []error
	for _, b := range m.backends {
		p, err := b.Load(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, errors.Join(errs...)
}

// List returns the first non-empty listing.
func (m *MultiStorage) List(ctx context.Context, maxResults int, start, finish time.Time, order profiler.ListOrder) ([]string, error) {
	var errs []error
	for _, b := range m.backends {
		ids, err := b.List(ctx, maxResults, start, finish, order)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	return nil, errors.Join(errs...)
}

// SetUnviewed marks id unviewed in every backend.
func (m *MultiStorage) SetUnviewed(ctx context.Context, user, id string) error {
	return m.each(func(b profiler.Storage) error { return b.SetUnviewed(ctx, user, id) })
}

// SetViewed marks id viewed in every backend.
func (m *MultiStorage) SetViewed(ctx context.Context, user, id string) error {
	return m.each(func(b profiler.Storage) error { return b.SetViewed(ctx, user, id) })
}

// GetUnviewedIDs returns the first non-empty unviewed list.
func (m *MultiStorage) GetUnviewedIDs(ctx context.Context, user string) ([]string, error) {
	var errs []error
	for _, b := range m.backends {
		ids, err := b.GetUnviewedIDs(ctx, user)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	return nil, errors.Join(errs...)
}

// SetUnviewedAfterSave reports whether any backend needs the follow-up call.
func (m *MultiStorage) SetUnviewedAfterSave() bool {
	for _, b := range m.backends {
		if b.SetUnviewedAfterSave() {
			return true
		}
	}
	return false
}

func (m *MultiStorage) each(fn func(profiler.Storage) error) error {
	var errs []error
	for _, b := range m.backends {
		if err := fn(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
