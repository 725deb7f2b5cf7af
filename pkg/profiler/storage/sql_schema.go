package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// schemaStatements create the profiler tables. They are valid for both SQLite and
// PostgreSQL and are executed one at a time.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stopwatch_schema_version (
    version INTEGER PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`,

	// One row per session. started is unix nanoseconds (UTC).
	`CREATE TABLE IF NOT EXISTS stopwatch_profilers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    started BIGINT NOT NULL,
    duration_ms DOUBLE PRECISION,
    machine_name TEXT NOT NULL DEFAULT '',
    user_name TEXT NOT NULL DEFAULT '',
    has_user_viewed BOOLEAN NOT NULL DEFAULT FALSE,
    root_timing_id TEXT NOT NULL,
    custom_links TEXT,
    has_duplicate_custom_timings BOOLEAN NOT NULL DEFAULT FALSE,
    has_trivial_timings BOOLEAN NOT NULL DEFAULT FALSE,
    has_all_trivial_timings BOOLEAN NOT NULL DEFAULT FALSE,
    trivial_threshold_ms DOUBLE PRECISION NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS idx_stopwatch_profilers_started ON stopwatch_profilers(started)`,
	`CREATE INDEX IF NOT EXISTS idx_stopwatch_profilers_user_viewed ON stopwatch_profilers(user_name, has_user_viewed)`,

	// Timings flattened with their parent id; position is the depth-first order.
	`CREATE TABLE IF NOT EXISTS stopwatch_timings (
    id TEXT PRIMARY KEY,
    profiler_id TEXT NOT NULL,
    parent_timing_id TEXT,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    depth INTEGER NOT NULL,
    start_ms DOUBLE PRECISION NOT NULL,
    duration_ms DOUBLE PRECISION,
    duration_without_children_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
    has_children BOOLEAN NOT NULL DEFAULT FALSE,
    has_custom_timings BOOLEAN NOT NULL DEFAULT FALSE,
    has_duplicate_custom_timings BOOLEAN NOT NULL DEFAULT FALSE,
    is_trivial BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE INDEX IF NOT EXISTS idx_stopwatch_timings_profiler ON stopwatch_timings(profiler_id)`,

	`CREATE TABLE IF NOT EXISTS stopwatch_custom_timings (
    id TEXT PRIMARY KEY,
    profiler_id TEXT NOT NULL,
    parent_timing_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    category TEXT NOT NULL,
    command_string TEXT NOT NULL,
    execute_type TEXT NOT NULL DEFAULT '',
    start_ms DOUBLE PRECISION NOT NULL,
    duration_ms DOUBLE PRECISION,
    first_fetch_duration_ms DOUBLE PRECISION,
    errored BOOLEAN NOT NULL DEFAULT FALSE,
    is_duplicate BOOLEAN NOT NULL DEFAULT FALSE
)`,
	`CREATE INDEX IF NOT EXISTS idx_stopwatch_custom_timings_profiler ON stopwatch_custom_timings(profiler_id)`,
}

// InsertSchemaVersion records the schema version if not already present.
const InsertSchemaVersion = `INSERT INTO stopwatch_schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM stopwatch_schema_version`

const insertProfiler = `INSERT INTO stopwatch_profilers (
    id, name, started, duration_ms, machine_name, user_name, has_user_viewed,
    root_timing_id, custom_links, has_duplicate_custom_timings, has_trivial_timings,
    has_all_trivial_timings, trivial_threshold_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

const insertTiming = `INSERT INTO stopwatch_timings (
    id, profiler_id, parent_timing_id, position, name, depth, start_ms, duration_ms,
    duration_without_children_ms, has_children, has_custom_timings,
    has_duplicate_custom_timings, is_trivial
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

const insertCustomTiming = `INSERT INTO stopwatch_custom_timings (
    id, profiler_id, parent_timing_id, position, category, command_string, execute_type,
    start_ms, duration_ms, first_fetch_duration_ms, errored, is_duplicate
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

const selectProfiler = `SELECT
    id, name, started, duration_ms, machine_name, user_name, has_user_viewed,
    root_timing_id, custom_links, has_duplicate_custom_timings, has_trivial_timings,
    has_all_trivial_timings, trivial_threshold_ms
FROM stopwatch_profilers WHERE id = ?`

const selectTimings = `SELECT
    id, parent_timing_id, position, name, depth, start_ms, duration_ms,
    duration_without_children_ms, has_children, has_custom_timings,
    has_duplicate_custom_timings, is_trivial
FROM stopwatch_timings WHERE profiler_id = ?`

const selectCustomTimings = `SELECT
    id, parent_timing_id, position, category, command_string, execute_type,
    start_ms, duration_ms, first_fetch_duration_ms, errored, is_duplicate
FROM stopwatch_custom_timings WHERE profiler_id = ?`

const updateViewed = `UPDATE stopwatch_profilers SET has_user_viewed = ? WHERE id = ? AND user_name = ?`

const selectUnviewed = `SELECT id FROM stopwatch_profilers
WHERE user_name = ? AND has_user_viewed = ?
ORDER BY started ASC, id ASC`
