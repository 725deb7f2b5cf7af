package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"mercator-hq/stopwatch/pkg/config"
	"mercator-hq/stopwatch/pkg/profiler"
	"mercator-hq/stopwatch/pkg/profiler/retention"
	"mercator-hq/stopwatch/pkg/profiler/storage"
)

// store is the opened session storage plus the pieces of it that support retention.
type store struct {
	profiler.Storage

	// prunable lists every backend that implements retention, in lookup order.
	prunable []retention.Prunable
	closers  []io.Closer
}

// Close closes every backend that holds resources.
func (s *store) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openStorage opens the configured backend. The "none" backend yields a store with a
// nil Storage.
func openStorage(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (*store, error) {
	s := &store{}
	if cfg.Backend == config.BackendNone {
		logger.Warn("session storage disabled, profiles will not be kept")
		return s, nil
	}

	names := []string{cfg.Backend}
	if cfg.Backend == config.BackendMulti {
		names = cfg.Multi
	}

	var backends []profiler.Storage
	for _, name := range names {
		b, err := openBackend(ctx, name, cfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open %s storage: %w", name, err)
		}
		backends = append(backends, b)
		if p, ok := b.(retention.Prunable); ok {
			s.prunable = append(s.prunable, p)
		}
		if c, ok := b.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
		logger.Info("session storage opened", "backend", name)
	}

	if len(backends) == 1 {
		s.Storage = backends[0]
	} else {
		s.Storage = storage.NewMultiStorage(backends...)
	}
	return s, nil
}

func openBackend(ctx context.Context, name string, cfg *config.StorageConfig) (profiler.Storage, error) {
	switch name {
	case config.BackendMemory:
		return storage.NewMemoryStorageWithConfig(storage.MemoryConfig{
			CacheDuration: cfg.Memory.CacheDuration,
			MaxSessions:   cfg.Memory.MaxSessions,
		})

	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); cfg.SQLite.Path != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return storage.NewSQLStorage(&storage.SQLConfig{
			Driver:       cfg.SQLite.Driver,
			DSN:          cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})

	case config.BackendPostgres:
		return storage.NewSQLStorage(&storage.SQLConfig{
			Driver:       storage.DriverPostgres,
			DSN:          cfg.Postgres.DSN,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Postgres.MaxIdleConns,
		})

	case config.BackendElasticsearch:
		es, err := storage.NewElasticsearchStorage(&storage.ElasticsearchConfig{
			Addresses: cfg.Elasticsearch.Addresses,
			Index:     cfg.Elasticsearch.Index,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
			Refresh:   cfg.Elasticsearch.Refresh,
		})
		if err != nil {
			return nil, err
		}
		if err := es.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		return es, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend %q", name)
	}
}

// newPruners builds one pruner per prunable backend.
func newPruners(s *store, cfg *config.RetentionConfig) []*retention.Pruner {
	pruners := make([]*retention.Pruner, 0, len(s.prunable))
	for _, p := range s.prunable {
		pruners = append(pruners, retention.NewPruner(p, &retention.Config{
			MaxAge:   cfg.MaxAge,
			MaxCount: cfg.MaxCount,
			Schedule: cfg.Schedule,
		}))
	}
	return pruners
}
