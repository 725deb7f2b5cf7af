// Package retention prunes stored profiler sessions by age and by count.
//
// # Retention Policy
//
//   - MaxAge: sessions started before now-MaxAge are deleted (0 keeps them forever)
//   - MaxCount: once more than MaxCount sessions are stored the oldest are deleted
//     (0 means unlimited)
//   - Schedule: cron expression for background pruning (empty disables the scheduler)
//
// # Basic Usage
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    MaxAge:   24 * time.Hour,
//	    MaxCount: 10000,
//	    Schedule: "*/15 * * * *",
//	})
//	if err := pruner.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pruner.Stop()
//
// Any store implementing Prunable works; storage.MemoryStorage, storage.SQLStorage and
// storage.ElasticsearchStorage all do.
package retention
