// Package profiler records where time is spent inside one unit of work, typically
// one HTTP request, as a tree of named timings.
//
// A Profiler is one profiling session. It owns a root Timing; code under measurement
// opens child timings with Step and attaches flat sub-timings (SQL, HTTP, cache calls)
// with CustomTiming. When the session stops, the tree is finalized: trivial timings are
// classified and optionally pruned, self time is computed for every node, and custom
// timings repeated within the session are flagged as duplicates. The finalized session
// is then handed to a Storage implementation.
//
// # Ambient context
//
// The current session and the active timing travel in a context.Context. Start returns a
// context carrying the new session; every Step returns a derived context whose active
// timing is the new child. Goroutines that fan out from one step therefore attach their
// own children to the branch they were handed, never to a sibling's:
//
//	ctx, p := profiler.Start(ctx, "GET /orders", opts)
//	defer p.Stop(ctx, false)
//
//	ctx, step := profiler.Step(ctx, "load orders")
//	defer step.Stop()
//
//	ct := profiler.StartCustomTiming(ctx, "sql", "SELECT * FROM orders", "Reader")
//	rows, err := db.QueryContext(ctx, "SELECT * FROM orders")
//	ct.Stop()
//
// All package-level helpers accept a context without a session and do nothing, so
// instrumented code needs no branches for the "profiling disabled" case. A nil *Timing
// and a nil *CustomTiming are valid receivers.
//
// # Lifecycle
//
// A session is active from Start until the first Stop. Stop closes every timing still
// open, finalizes the tree and saves it unless results are discarded. Later calls to Stop
// return false. A session that is never stopped is simply never persisted.
//
// # Persistence
//
// Flatten turns a finalized session into a Record: one session row, a flat list of
// timings carrying their parent id and a flat list of custom timings carrying the id of
// the timing they belong to. Rebuild regroups a Record into the nested tree in a single
// pass. Storage implementations live in the storage subpackage.
//
// # Thread Safety
//
// Every Timing guards its children and custom timings with its own mutex. The session
// guards its lookup table and default active timing with another. No lock is held while
// the storage is called.
package profiler
