// Package storage provides implementations of profiler.Storage.
//
// # Backends
//
//   - MemoryStorage keeps sessions in a ristretto cache with sliding expiration. It is
//     the reference implementation and the default for single-process deployments.
//   - SQLStorage persists sessions to SQLite (mattn/go-sqlite3 or the cgo-free
//     modernc.org/sqlite driver) or PostgreSQL (pgx). Sessions, timings and custom
//     timings live in three tables keyed by session id.
//   - ElasticsearchStorage indexes one document per session.
//   - MultiStorage chains several backends: reads return the first hit, writes go to
//     every backend.
//
// Every backend stores the flattened profiler.Record, so a loaded session is a fresh,
// stopped *profiler.Profiler that shares nothing with the one that was saved.
//
// # View tracking
//
// Backends remember, per user, which sessions have not been viewed yet. MemoryStorage
// keeps that list apart from the session itself and reports SetUnviewedAfterSave() ==
// true; the database backends store a has_user_viewed flag with the session and report
// false.
//
// # Retention
//
// MemoryStorage and SQLStorage implement the retention.Prunable interface
// (DeleteBefore, Count, DeleteOldest).
package storage
