package health

import (
	"context"
	"time"

	"mercator-hq/stopwatch/pkg/profiler"
)

// StorageCheck reports whether store answers a one-item List.
func StorageCheck(store profiler.Storage) CheckFunc {
	return func(ctx context.Context) error {
		_, err := store.List(ctx, 1, time.Time{}, time.Time{}, profiler.Descending)
		return err
	}
}
