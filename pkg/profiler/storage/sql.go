package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/stopwatch/pkg/profiler"
)

// Supported database/sql driver names.
const (
	DriverSQLite3  = "sqlite3" // github.com/mattn/go-sqlite3 (cgo)
	DriverSQLite   = "sqlite"  // modernc.org/sqlite (pure Go)
	DriverPostgres = "pgx"     // github.com/jackc/pgx/v5/stdlib
)

// SQLConfig contains configuration for the SQL storage backend.
type SQLConfig struct {
	// Driver is the database/sql driver name: "sqlite3", "sqlite" or "pgx".
	// Default: "sqlite"
	Driver string

	// DSN is the data source name: a file path for SQLite, a connection URL for
	// PostgreSQL.
	// Default: "data/stopwatch.db"
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 1 for SQLite, 10 for PostgreSQL
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: same as MaxOpenConns
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging on SQLite.
	// Default: true
	WALMode bool

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLConfig returns the default SQL configuration (pure-Go SQLite).
func DefaultSQLConfig() *SQLConfig {
	return &SQLConfig{
		Driver:      DriverSQLite,
		DSN:         "data/stopwatch.db",
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLStorage implements profiler.Storage on top of database/sql.
//
// A session is written in one transaction: the session row first, with ON CONFLICT
// DO NOTHING, then its timings and custom timings only when the row was new. Saving
// an id twice therefore leaves the stored tree untouched.
type SQLStorage struct {
	db      *sql.DB
	config  *SQLConfig
	backend string
	logger  *slog.Logger

	queries   sync.Map // "?" query -> rebound query
	closeOnce sync.Once
}

// NewSQLStorage opens the database, creates the schema and records its version.
func NewSQLStorage(config *SQLConfig) (*SQLStorage, error) {
	if config == nil {
		config = DefaultSQLConfig()
	}
	cfg := *config
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.DSN == "" {
		cfg.DSN = "data/stopwatch.db"
	}

	backend := "sqlite"
	switch cfg.Driver {
	case DriverSQLite, DriverSQLite3:
		if cfg.MaxOpenConns <= 0 {
			cfg.MaxOpenConns = 1
		}
	case DriverPostgres:
		backend = "postgres"
		if cfg.MaxOpenConns <= 0 {
			cfg.MaxOpenConns = 10
		}
	default:
		return nil, profiler.NewStorageError("sql", "open", fmt.Errorf("unsupported driver %q", cfg.Driver))
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "profiler.storage.sql", "driver", cfg.Driver)

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, profiler.NewStorageError(backend, "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := &SQLStorage{
		db:      db,
		config:  &cfg,
		backend: backend,
		logger:  logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQL storage initialized",
		"backend", backend,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return s, nil
}

// initialize applies SQLite pragmas and creates the schema.
func (s *SQLStorage) initialize() error {
	ctx := context.Background()

	if s.backend == "sqlite" {
		if s.config.WALMode {
			if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
				return profiler.NewStorageError(s.backend, "enable_wal", err)
			}
		}
		busy := fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())
		if _, err := s.db.ExecContext(ctx, busy); err != nil {
			return profiler.NewStorageError(s.backend, "set_busy_timeout", err)
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return profiler.NewStorageError(s.backend, "create_schema", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, s.q(InsertSchemaVersion), SchemaVersion, time.Now().UnixNano()); err != nil {
		return profiler.NewStorageError(s.backend, "insert_schema_version", err)
	}
	s.logger.Debug("database schema ready", "version", SchemaVersion)
	return nil
}

// Save writes the session, its timings and custom timings in one transaction.
func (s *SQLStorage) Save(ctx context.Context, p *profiler.Profiler) error {
	if p == nil {
		return profiler.NewStorageError(s.backend, "save", errors.New("nil profiler"))
	}
	rec := p.Flatten()

	links, err := encodeLinks(rec.Session.CustomLinks)
	if err != nil {
		return profiler.NewStorageError(s.backend, "save", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return profiler.NewStorageError(s.backend, "begin", err)
	}
	defer tx.Rollback()

	sess := rec.Session
	res, err := tx.ExecContext(ctx, s.q(insertProfiler),
		sess.ID,
		sess.Name,
		sess.Started.UnixNano(),
		sess.DurationMilliseconds,
		sess.MachineName,
		sess.User,
		sess.HasUserViewed,
		sess.RootTimingID,
		links,
		sess.HasDuplicateCustomTimings,
		sess.HasTrivialTimings,
		sess.HasAllTrivialTimings,
		sess.TrivialDurationThresholdMilliseconds,
	)
	if err != nil {
		return profiler.NewStorageError(s.backend, "insert_profiler", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("profiler already stored", "profiler_id", sess.ID)
		return tx.Commit()
	}

	for _, t := range rec.Timings {
		_, err := tx.ExecContext(ctx, s.q(insertTiming),
			t.ID,
			sess.ID,
			nullString(t.ParentTimingID),
			t.Position,
			t.Name,
			t.Depth,
			t.StartMilliseconds,
			t.DurationMilliseconds,
			t.DurationWithoutChildrenMilliseconds,
			t.HasChildren,
			t.HasCustomTimings,
			t.HasDuplicateCustomTimings,
			t.IsTrivial,
		)
		if err != nil {
			return profiler.NewStorageError(s.backend, "insert_timing", err)
		}
	}

	for _, ct := range rec.CustomTimings {
		_, err := tx.ExecContext(ctx, s.q(insertCustomTiming),
			ct.ID,
			sess.ID,
			ct.ParentTimingID,
			ct.Position,
			ct.Category,
			ct.CommandString,
			ct.ExecuteType,
			ct.StartMilliseconds,
			ct.DurationMilliseconds,
			ct.FirstFetchDurationMilliseconds,
			ct.Errored,
			ct.IsDuplicate,
		)
		if err != nil {
			return profiler.NewStorageError(s.backend, "insert_custom_timing", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return profiler.NewStorageError(s.backend, "commit", err)
	}
	return nil
}

// Load reads the session rows and rebuilds the tree. It returns nil for an unknown id.
func (s *SQLStorage) Load(ctx context.Context, id string) (*profiler.Profiler, error) {
	var (
		rec      profiler.Record
		started  int64
		duration sql.NullFloat64
		links    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.q(selectProfiler), id).Scan(
		&rec.Session.ID,
		&rec.Session.Name,
		&started,
		&duration,
		&rec.Session.MachineName,
		&rec.Session.User,
		&rec.Session.HasUserViewed,
		&rec.Session.RootTimingID,
		&links,
		&rec.Session.HasDuplicateCustomTimings,
		&rec.Session.HasTrivialTimings,
		&rec.Session.HasAllTrivialTimings,
		&rec.Session.TrivialDurationThresholdMilliseconds,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, profiler.NewStorageError(s.backend, "load", err)
	}
	rec.Session.Started = time.Unix(0, started).UTC()
	rec.Session.DurationMilliseconds = floatPtr(duration)
	if rec.Session.CustomLinks, err = decodeLinks(links); err != nil {
		return nil, profiler.NewStorageError(s.backend, "load", err)
	}

	if rec.Timings, err = s.loadTimings(ctx, id); err != nil {
		return nil, profiler.NewStorageError(s.backend, "load_timings", err)
	}
	if rec.CustomTimings, err = s.loadCustomTimings(ctx, id); err != nil {
		return nil, profiler.NewStorageError(s.backend, "load_custom_timings", err)
	}

	p, err := profiler.Rebuild(&rec)
	if err != nil {
		return nil, profiler.NewStorageError(s.backend, "load", err)
	}
	return p, nil
}

func (s *SQLStorage) loadTimings(ctx context.Context, id string) ([]profiler.TimingRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(selectTimings), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []profiler.TimingRecord
	for rows.Next() {
		var (
			t        profiler.TimingRecord
			parent   sql.NullString
			duration sql.NullFloat64
		)
		if err := rows.Scan(
			&t.ID,
			&parent,
			&t.Position,
			&t.Name,
			&t.Depth,
			&t.StartMilliseconds,
			&duration,
			&t.DurationWithoutChildrenMilliseconds,
			&t.HasChildren,
			&t.HasCustomTimings,
			&t.HasDuplicateCustomTimings,
			&t.IsTrivial,
		); err != nil {
			return nil, err
		}
		t.ParentTimingID = parent.String
		t.DurationMilliseconds = floatPtr(duration)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStorage) loadCustomTimings(ctx context.Context, id string) ([]profiler.CustomTimingRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(selectCustomTimings), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []profiler.CustomTimingRecord
	for rows.Next() {
		var (
			ct         profiler.CustomTimingRecord
			duration   sql.NullFloat64
			firstFetch sql.NullFloat64
		)
		if err := rows.Scan(
			&ct.ID,
			&ct.ParentTimingID,
			&ct.Position,
			&ct.Category,
			&ct.CommandString,
			&ct.ExecuteType,
			&ct.StartMilliseconds,
			&duration,
			&firstFetch,
			&ct.Errored,
			&ct.IsDuplicate,
		); err != nil {
			return nil, err
		}
		ct.DurationMilliseconds = floatPtr(duration)
		ct.FirstFetchDurationMilliseconds = floatPtr(firstFetch)
		out = append(out, ct)
	}
	return out, rows.Err()
}

// List returns session ids started within [start, finish], newest or oldest first.
func (s *SQLStorage) List(ctx context.Context, maxResults int, start, finish time.Time, order profiler.ListOrder) ([]string, error) {
	query, args := buildListQuery(maxResults, start, finish, order)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, profiler.NewStorageError(s.backend, "list", err)
	}
	defer rows.Close()

	ids, err := scanIDs(rows)
	if err != nil {
		return nil, profiler.NewStorageError(s.backend, "list", err)
	}
	return ids, nil
}

// SetUnviewed clears the viewed flag of a session owned by user.
func (s *SQLStorage) SetUnviewed(ctx context.Context, user, id string) error {
	if _, err := s.db.ExecContext(ctx, s.q(updateViewed), false, id, user); err != nil {
		return profiler.NewStorageError(s.backend, "set_unviewed", err)
	}
	return nil
}

// SetViewed sets the viewed flag of a session owned by user.
func (s *SQLStorage) SetViewed(ctx context.Context, user, id string) error {
	if _, err := s.db.ExecContext(ctx, s.q(updateViewed), true, id, user); err != nil {
		return profiler.NewStorageError(s.backend, "set_viewed", err)
	}
	return nil
}

// GetUnviewedIDs returns the user's unviewed sessions, oldest first.
func (s *SQLStorage) GetUnviewedIDs(ctx context.Context, user string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(selectUnviewed), user, false)
	if err != nil {
		return nil, profiler.NewStorageError(s.backend, "get_unviewed_ids", err)
	}
	defer rows.Close()

	ids, err := scanIDs(rows)
	if err != nil {
		return nil, profiler.NewStorageError(s.backend, "get_unviewed_ids", err)
	}
	return ids, nil
}

// SetUnviewedAfterSave returns false: the viewed flag is written with the session row.
func (s *SQLStorage) SetUnviewedAfterSave() bool {
	return false
}

// DeleteBefore removes sessions started before cutoff with all their timings.
func (s *SQLStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteWhere(ctx, "SELECT id FROM stopwatch_profilers WHERE started < ?", cutoff.UnixNano())
}

// DeleteOldest removes the n oldest sessions with all their timings.
func (s *SQLStorage) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	return s.deleteWhere(ctx, "SELECT id FROM stopwatch_profilers ORDER BY started ASC, id ASC LIMIT ?", n)
}

// Count returns the number of stored sessions.
func (s *SQLStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stopwatch_profilers").Scan(&n); err != nil {
		return 0, profiler.NewStorageError(s.backend, "count", err)
	}
	return n, nil
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, GetSchemaVersion).Scan(&v); err != nil {
		return 0, profiler.NewStorageError(s.backend, "schema_version", err)
	}
	return int(v.Int64), nil
}

// DB returns the underlying database handle.
func (s *SQLStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

// deleteWhere deletes the sessions selected by idQuery, children first.
func (s *SQLStorage) deleteWhere(ctx context.Context, idQuery string, args ...any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, profiler.NewStorageError(s.backend, "begin", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, s.q(idQuery), args...)
	if err != nil {
		return 0, profiler.NewStorageError(s.backend, "delete", err)
	}
	ids, err := scanIDs(rows)
	rows.Close()
	if err != nil {
		return 0, profiler.NewStorageError(s.backend, "delete", err)
	}

	for _, id := range ids {
		for _, table := range []string{"stopwatch_custom_timings", "stopwatch_timings"} {
			if _, err := tx.ExecContext(ctx, s.q("DELETE FROM "+table+" WHERE profiler_id = ?"), id); err != nil {
				return 0, profiler.NewStorageError(s.backend, "delete", err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM stopwatch_profilers WHERE id = ?"), id); err != nil {
			return 0, profiler.NewStorageError(s.backend, "delete", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, profiler.NewStorageError(s.backend, "commit", err)
	}
	if len(ids) > 0 {
		s.logger.Debug("deleted profilers", "count", len(ids))
	}
	return int64(len(ids)), nil
}

// q rewrites "?" placeholders for the configured driver, caching the result.
func (s *SQLStorage) q(query string) string {
	if s.backend != "postgres" {
		return query
	}
	if cached, ok := s.queries.Load(query); ok {
		return cached.(string)
	}
	rebound := rebindDollar(query)
	s.queries.Store(query, rebound)
	return rebound
}

// rebindDollar turns "?" placeholders into "$1", "$2", ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// buildListQuery builds the id query for List with "?" placeholders.
func buildListQuery(maxResults int, start, finish time.Time, order profiler.ListOrder) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if !start.IsZero() {
		conditions = append(conditions, "started >= ?")
		args = append(args, start.UnixNano())
	}
	if !finish.IsZero() {
		conditions = append(conditions, "started <= ?")
		args = append(args, finish.UnixNano())
	}

	var b strings.Builder
	b.WriteString("SELECT id FROM stopwatch_profilers")
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	if order == profiler.Ascending {
		b.WriteString(" ORDER BY started ASC, id ASC")
	} else {
		b.WriteString(" ORDER BY started DESC, id DESC")
	}
	if maxResults > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, maxResults)
	}
	return b.String(), args
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func encodeLinks(links map[string]string) (sql.NullString, error) {
	if len(links) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(links)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode custom links: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeLinks(s sql.NullString) (map[string]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var links map[string]string
	if err := json.Unmarshal([]byte(s.String), &links); err != nil {
		return nil, fmt.Errorf("failed to decode custom links: %w", err)
	}
	return links, nil
}
