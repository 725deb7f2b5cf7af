// Stopwatch is a request profiler: it records a nested timing tree for every request
// an application serves, with the SQL and HTTP calls each step made, and keeps the
// sessions in a pluggable store for later inspection.
//
// Usage:
//
//	# Serve the instrumented demo application with default configuration
//	stopwatch serve
//
//	# Serve with a configuration file, reloading it on change
//	stopwatch serve --config /etc/stopwatch/config.yaml
//
//	# List recent sessions from the configured store
//	stopwatch list -n 20 --output csv
//
//	# Print one session as an indented tree
//	stopwatch show 6f1c2a8e-...
//
//	# Apply the retention policy once
//	stopwatch prune --max-age 72h
//
// Every setting can also be given as a STOPWATCH_ environment variable, e.g.
// STOPWATCH_STORAGE_BACKEND=sqlite.
package main

func main() {
	Execute()
}
