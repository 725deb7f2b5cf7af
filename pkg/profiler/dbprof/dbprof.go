// Package dbprof records database/sql calls as "sql" custom timings on the session
// carried by the call's context.
//
// Wrap accepts anything with the context-aware query methods of *sql.DB, so the same
// wrapper instruments a pool, a transaction or a single connection:
//
//	db := dbprof.Wrap(sqlDB)
//	rows, err := db.QueryContext(ctx, "SELECT id FROM orders WHERE user_id = ?", user)
//	...
//	tx, _ := sqlDB.BeginTx(ctx, nil)
//	_, err = dbprof.Wrap(tx).ExecContext(ctx, "UPDATE orders SET state = ?", "paid")
//
// Calls made with a context that has no active session go straight to the wrapped
// connection.
package dbprof

import (
	"context"
	"database/sql"
	"errors"

	"mercator-hq/stopwatch/pkg/profiler"
)

// Category is the custom timing category used for SQL commands.
const Category = "sql"

// Conn is the query surface shared by *sql.DB, *sql.Tx and *sql.Conn.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Option configures a wrapper.
type Option func(*options)

type options struct {
	category  string
	minSaveMs float64
}

// WithCategory overrides the custom timing category.
func WithCategory(category string) Option {
	return func(o *options) { o.category = category }
}

// WithMinSaveMilliseconds drops commands faster than ms when they stop.
func WithMinSaveMilliseconds(ms float64) Option {
	return func(o *options) { o.minSaveMs = ms }
}

// DB wraps a Conn.
type DB[C Conn] struct {
	conn C
	opts options
}

// Wrap returns an instrumented view of c.
func Wrap[C Conn](c C, opts ...Option) *DB[C] {
	o := options{category: Category}
	for _, opt := range opts {
		opt(&o)
	}
	return &DB[C]{conn: c, opts: o}
}

// Unwrap returns the wrapped connection.
func (d *DB[C]) Unwrap() C {
	return d.conn
}

func (d *DB[C]) start(ctx context.Context, query, executeType string) *profiler.CustomTiming {
	if d.opts.minSaveMs > 0 {
		return profiler.StartCustomTimingIf(ctx, d.opts.category, query, executeType, d.opts.minSaveMs)
	}
	return profiler.StartCustomTiming(ctx, d.opts.category, query, executeType)
}

// ExecContext runs a statement that returns no rows.
func (d *DB[C]) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ct := d.start(ctx, query, profiler.ExecuteTypeNonQuery)
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		ct.SetErrored()
	}
	ct.Stop()
	return res, err
}

// QueryContext runs a query. The timing stays open until the returned Rows are
// closed; the first call to Next records the time to first result.
func (d *DB[C]) QueryContext(ctx context.Context, query string, args ...any) (*Rows, error) {
	ct := d.start(ctx, query, profiler.ExecuteTypeReader)
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		ct.SetErrored()
		ct.Stop()
		return nil, err
	}
	return &Rows{Rows: rows, timing: ct}, nil
}

// QueryRowContext runs a query expected to return at most one row. The timing stops
// at Scan.
func (d *DB[C]) QueryRowContext(ctx context.Context, query string, args ...any) *Row {
	ct := d.start(ctx, query, profiler.ExecuteTypeScalar)
	row := d.conn.QueryRowContext(ctx, query, args...)
	ct.MarkFirstResult()
	return &Row{row: row, timing: ct}
}

// Rows is a *sql.Rows whose Close stops the command's timing.
type Rows struct {
	*sql.Rows
	timing  *profiler.CustomTiming
	fetched bool
}

// Next advances to the next row.
func (r *Rows) Next() bool {
	if !r.fetched {
		r.fetched = true
		r.timing.MarkFirstResult()
	}
	return r.Rows.Next()
}

// Close closes the rows and stops the timing.
func (r *Rows) Close() error {
	err := r.Rows.Close()
	if err != nil || r.Rows.Err() != nil {
		r.timing.SetErrored()
	}
	r.timing.Stop()
	return err
}

// Row is a *sql.Row whose Scan stops the command's timing.
type Row struct {
	row    *sql.Row
	timing *profiler.CustomTiming
}

// Scan copies the row into dest. sql.ErrNoRows is not counted as a failure.
func (r *Row) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		r.timing.SetErrored()
	}
	r.timing.Stop()
	return err
}

// Err returns the error, if any, that was encountered while running the query.
func (r *Row) Err() error {
	return r.row.Err()
}
