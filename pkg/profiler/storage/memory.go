package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"mercator-hq/stopwatch/pkg/profiler"
)

// MemoryStorage keeps flattened sessions in a ristretto cache. Every Load pushes the
// expiry of the loaded session forward by CacheDuration.
//
// A sorted index of (started, id) serves List and retention; per-user unviewed lists
// serve view tracking. Both are guarded by mu.
type MemoryStorage struct {
	cache *ristretto.Cache

	mu       sync.RWMutex
	index    []indexEntry
	expires  map[string]time.Time
	unviewed map[string][]string

	cacheDuration   time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

type indexEntry struct {
	started time.Time
	id      string
}

// MemoryConfig configures MemoryStorage.
type MemoryConfig struct {
	// CacheDuration is how long a session survives without being saved or loaded.
	// Default: 1 hour
	CacheDuration time.Duration

	// MaxSessions bounds the number of cached sessions. The cache's admission policy
	// picks what to evict once it is full.
	// Default: 10,000
	MaxSessions int64

	// CleanupInterval is how often expired sessions are dropped from the index.
	// Default: 1 minute
	CleanupInterval time.Duration
}

// DefaultMemoryConfig returns the default memory configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		CacheDuration:   time.Hour,
		MaxSessions:     10000,
		CleanupInterval: time.Minute,
	}
}

// NewMemoryStorage creates a memory storage with default settings.
func NewMemoryStorage() (*MemoryStorage, error) {
	return NewMemoryStorageWithConfig(DefaultMemoryConfig())
}

// NewMemoryStorageWithConfig creates a memory storage with custom configuration.
func NewMemoryStorageWithConfig(cfg MemoryConfig) (*MemoryStorage, error) {
	defaults := DefaultMemoryConfig()
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = defaults.CacheDuration
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaults.MaxSessions
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxSessions * 10,
		MaxCost:     cfg.MaxSessions,
		BufferItems: 64,

		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, profiler.NewStorageError("memory", "init", err)
	}

	m := &MemoryStorage{
		cache:           cache,
		expires:         make(map[string]time.Time),
		unviewed:        make(map[string][]string),
		cacheDuration:   cfg.CacheDuration,
		cleanupInterval: cfg.CleanupInterval,
		now:             time.Now,
		done:            make(chan struct{}),
	}

	go m.cleanupLoop()

	return m, nil
}

// Save stores a copy of the session. Saving an existing id replaces the cached copy
// and refreshes its expiry.
func (m *MemoryStorage) Save(ctx context.Context, p *profiler.Profiler) error {
	if err := ctx.Err(); err != nil {
		return profiler.NewStorageError("memory", "save", err)
	}
	if p == nil {
		return profiler.NewStorageError("memory", "save", errors.New("nil profiler"))
	}

	rec := p.Flatten()
	if !m.cache.SetWithTTL(rec.Session.ID, rec, 1, m.cacheDuration) {
		return profiler.NewStorageError("memory", "save", errors.New("session rejected by cache"))
	}
	m.cache.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expires[rec.Session.ID]; !ok {
		m.insertIndexLocked(indexEntry{started: rec.Session.Started, id: rec.Session.ID})
	}
	m.expires[rec.Session.ID] = m.now().Add(m.cacheDuration)
	return nil
}

// Load returns a fresh copy of the session, or nil when it is unknown or expired.
// HasUserViewed reflects the session owner's unviewed list.
func (m *MemoryStorage) Load(ctx context.Context, id string) (*profiler.Profiler, error) {
	if err := ctx.Err(); err != nil {
		return nil, profiler.NewStorageError("memory", "load", err)
	}

	value, found := m.cache.Get(id)
	if !found {
		m.mu.Lock()
		m.removeLocked(id)
		m.mu.Unlock()
		return nil, nil
	}
	rec, ok := value.(*profiler.Record)
	if !ok {
		return nil, profiler.NewStorageError("memory", "load", errors.New("unexpected cache value"))
	}

	// Sliding expiration.
	m.cache.SetWithTTL(id, rec, 1, m.cacheDuration)

	m.mu.Lock()
	if _, ok := m.expires[id]; ok {
		m.expires[id] = m.now().Add(m.cacheDuration)
	}
	viewed := !containsID(m.unviewed[rec.Session.User], id)
	m.mu.Unlock()

	p, err := profiler.Rebuild(rec)
	if err != nil {
		return nil, profiler.NewStorageError("memory", "load", err)
	}
	p.HasUserViewed = viewed
	return p, nil
}

// List returns up to maxResults ids of sessions started within [start, finish]. A
// maxResults of zero or less returns every match.
func (m *MemoryStorage) List(ctx context.Context, maxResults int, start, finish time.Time, order profiler.ListOrder) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, profiler.NewStorageError("memory", "list", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	appendMatch := func(e indexEntry) bool {
		if !start.IsZero() && e.started.Before(start) {
			return true
		}
		if !finish.IsZero() && e.started.After(finish) {
			return true
		}
		ids = append(ids, e.id)
		return maxResults <= 0 || len(ids) < maxResults
	}

	if order == profiler.Ascending {
		for _, e := range m.index {
			if !appendMatch(e) {
				break
			}
		}
	} else {
		for i := len(m.index) - 1; i >= 0; i-- {
			if !appendMatch(m.index[i]) {
				break
			}
		}
	}
	return ids, nil
}

// SetUnviewed adds id to the user's unviewed list.
func (m *MemoryStorage) SetUnviewed(ctx context.Context, user, id string) error {
	if err := ctx.Err(); err != nil {
		return profiler.NewStorageError("memory", "set_unviewed", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !containsID(m.unviewed[user], id) {
		m.unviewed[user] = append(m.unviewed[user], id)
	}
	return nil
}

// SetViewed removes id from the user's unviewed list.
func (m *MemoryStorage) SetViewed(ctx context.Context, user, id string) error {
	if err := ctx.Err(); err != nil {
		return profiler.NewStorageError("memory", "set_viewed", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.unviewed[user] = removeID(m.unviewed[user], id)
	if len(m.unviewed[user]) == 0 {
		delete(m.unviewed, user)
	}
	return nil
}

// GetUnviewedIDs returns the user's unviewed sessions that are still stored, in the
// order they were marked.
func (m *MemoryStorage) GetUnviewedIDs(ctx context.Context, user string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, profiler.NewStorageError("memory", "get_unviewed_ids", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.unviewed[user]))
	for _, id := range m.unviewed[user] {
		if _, ok := m.expires[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// SetUnviewedAfterSave returns true: Save does not touch view state.
func (m *MemoryStorage) SetUnviewedAfterSave() bool {
	return true
}

// DeleteBefore removes sessions started before cutoff.
func (m *MemoryStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, profiler.NewStorageError("memory", "delete", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var victims []string
	for _, e := range m.index {
		if !e.started.Before(cutoff) {
			break
		}
		victims = append(victims, e.id)
	}
	for _, id := range victims {
		m.cache.Del(id)
		m.removeLocked(id)
	}
	return int64(len(victims)), nil
}

// Count returns the number of stored sessions.
func (m *MemoryStorage) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.index)), nil
}

// DeleteOldest removes the n oldest sessions.
func (m *MemoryStorage) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, profiler.NewStorageError("memory", "delete", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if n > int64(len(m.index)) {
		n = int64(len(m.index))
	}
	victims := make([]string, 0, n)
	for _, e := range m.index[:n] {
		victims = append(victims, e.id)
	}
	for _, id := range victims {
		m.cache.Del(id)
		m.removeLocked(id)
	}
	return int64(len(victims)), nil
}

// Close stops the cleanup goroutine and releases the cache.
func (m *MemoryStorage) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		m.cache.Close()
	})
	return nil
}

// Cleanup drops index entries whose cache expiry has passed.
func (m *MemoryStorage) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []string
	for id, exp := range m.expires {
		if now.After(exp) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		m.cache.Del(id)
		m.removeLocked(id)
	}
	return len(expired)
}

func (m *MemoryStorage) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.done:
			return
		}
	}
}

// insertIndexLocked keeps the index sorted by start time, then id.
func (m *MemoryStorage) insertIndexLocked(e indexEntry) {
	i := sort.Search(len(m.index), func(i int) bool {
		other := m.index[i]
		if other.started.Equal(e.started) {
			return other.id >= e.id
		}
		return other.started.After(e.started)
	})
	m.index = append(m.index, indexEntry{})
	copy(m.index[i+1:], m.index[i:])
	m.index[i] = e
}

// removeLocked forgets id everywhere except the cache.
func (m *MemoryStorage) removeLocked(id string) {
	if _, ok := m.expires[id]; !ok {
		return
	}
	delete(m.expires, id)
	for i, e := range m.index {
		if e.id == id {
			m.index = append(m.index[:i], m.index[i+1:]...)
			break
		}
	}
	for user, ids := range m.unviewed {
		if ids = removeID(ids, id); len(ids) == 0 {
			delete(m.unviewed, user)
		} else {
			m.unviewed[user] = ids
		}
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
