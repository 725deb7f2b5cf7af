// Package health provides liveness, readiness and version endpoints for the
// stopwatch server.
//
//   - /health: liveness, always ok while the process serves requests
//   - /ready: readiness, runs every registered check concurrently
//   - /version: build information
//
// Usage:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("storage", health.StorageCheck(store))
//	health.Register(mux, checker, version, commit, buildTime)
//
// Readiness answers 503 while any check fails or times out.
package health
