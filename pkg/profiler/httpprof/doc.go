// Package httpprof profiles HTTP traffic.
//
// # Incoming requests
//
// Middleware (or Gin for gin engines) starts a session per request and stores it in
// the request context, so handlers call profiler.Step and profiler.StartCustomTiming on
// r.Context() directly. The response carries an X-MiniProfiler-Ids header holding a
// JSON array of the user's unviewed session ids followed by the current one.
//
//	cfg := httpprof.DefaultConfig()
//	cfg.Options.Storage = store
//	mux.Handle("/", httpprof.Middleware(cfg)(app))
//	mux.Handle("/profiler/", http.StripPrefix("/profiler", httpprof.Handler(cfg)))
//
// # Outgoing requests
//
// Transport records each outgoing call as an "http" custom timing on the session in
// the request context. The timing reaches its first result when the response headers
// arrive and stops when the body is closed.
//
// # Results
//
// Handler serves stored sessions:
//
//   - GET /results?id=...            session as JSON; format=text for plain text
//   - GET /results-index?n=&order=   ids of recent sessions
//   - GET /results-list?n=           summaries of recent sessions
//
// Loading a session through /results marks it viewed for the requesting user.
package httpprof
