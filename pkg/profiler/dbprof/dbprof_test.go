package dbprof

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/stopwatch/pkg/profiler"
	"mercator-hq/stopwatch/pkg/profiler/clock"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("CREATE TABLE orders (id INTEGER PRIMARY KEY, total REAL)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	return db
}

func startSession(t *testing.T) (context.Context, *profiler.Profiler, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(1)
	opts := profiler.DefaultOptions()
	opts.ClockFactory = func() clock.Clock { return clk }
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, p := profiler.Start(context.Background(), "test", opts)
	return ctx, p, clk
}

func sqlTimings(p *profiler.Profiler) []*profiler.CustomTiming {
	return p.Root.CustomTimings[Category]
}

func TestWrap_RecordsCommands(t *testing.T) {
	db := Wrap(openTestDB(t))
	ctx, p, _ := startSession(t)

	for i := 1; i <= 2; i++ {
		if _, err := db.ExecContext(ctx, "INSERT INTO orders (id, total) VALUES (?, ?)", i, 9.5); err != nil {
			t.Fatalf("ExecContext failed: %v", err)
		}
	}

	rows, err := db.QueryContext(ctx, "SELECT id FROM orders ORDER BY id")
	if err != nil {
		t.Fatalf("QueryContext failed: %v", err)
	}
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) != 2 {
		t.Fatalf("Expected 2 rows, got %v", ids)
	}

	var total float64
	if err := db.QueryRowContext(ctx, "SELECT SUM(total) FROM orders").Scan(&total); err != nil {
		t.Fatalf("QueryRowContext failed: %v", err)
	}
	if total != 19 {
		t.Errorf("Expected total 19, got %v", total)
	}

	p.Stop(ctx, true)

	cts := sqlTimings(p)
	if len(cts) != 4 {
		t.Fatalf("Expected 4 sql timings, got %d", len(cts))
	}
	wantTypes := []string{profiler.ExecuteTypeNonQuery, profiler.ExecuteTypeNonQuery, profiler.ExecuteTypeReader, profiler.ExecuteTypeScalar}
	for i, ct := range cts {
		if ct.ExecuteType != wantTypes[i] {
			t.Errorf("Timing %d: expected execute type %s, got %s", i, wantTypes[i], ct.ExecuteType)
		}
		if _, ok := ct.Duration(); !ok {
			t.Errorf("Timing %d: expected to be stopped", i)
		}
		if ct.Errored {
			t.Errorf("Timing %d: unexpected error flag", i)
		}
	}
	if cts[2].FirstFetchDurationMilliseconds == nil {
		t.Error("Expected reader to record time to first result")
	}
	if cts[0].IsDuplicate {
		t.Error("Expected the first insert not to be a duplicate")
	}
	if !cts[1].IsDuplicate {
		t.Error("Expected the repeated insert to be flagged as a duplicate")
	}
}

func TestWrap_ReaderStaysOpenUntilClose(t *testing.T) {
	db := Wrap(openTestDB(t))
	ctx, p, clk := startSession(t)

	rows, err := db.QueryContext(ctx, "SELECT id FROM orders")
	if err != nil {
		t.Fatalf("QueryContext failed: %v", err)
	}
	clk.Advance(3)
	rows.Next()
	clk.Advance(4)
	rows.Close()

	ct := sqlTimings(p)[0]
	if d, _ := ct.Duration(); d != 7 {
		t.Errorf("Expected duration 7ms, got %v", d)
	}
	if ff := ct.FirstFetchDurationMilliseconds; ff == nil || *ff != 3 {
		t.Errorf("Expected first fetch at 3ms, got %v", ff)
	}
}

func TestWrap_Errors(t *testing.T) {
	db := Wrap(openTestDB(t))
	ctx, p, _ := startSession(t)

	if _, err := db.ExecContext(ctx, "INSERT INTO missing VALUES (1)"); err == nil {
		t.Fatal("Expected error for unknown table")
	}
	if _, err := db.QueryContext(ctx, "SELECT nope FROM orders"); err == nil {
		t.Fatal("Expected error for unknown column")
	}
	var id int
	if err := db.QueryRowContext(ctx, "SELECT id FROM orders WHERE id = ?", 42).Scan(&id); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Expected sql.ErrNoRows, got %v", err)
	}

	cts := sqlTimings(p)
	if len(cts) != 3 {
		t.Fatalf("Expected 3 sql timings, got %d", len(cts))
	}
	if !cts[0].Errored || !cts[1].Errored {
		t.Error("Expected failed commands to be flagged")
	}
	if cts[2].Errored {
		t.Error("Expected no-rows not to count as an error")
	}
}

func TestWrap_Transaction(t *testing.T) {
	raw := openTestDB(t)
	ctx, p, _ := startSession(t)

	tx, err := raw.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	txdb := Wrap(tx, WithCategory("sql-tx"))
	if _, err := txdb.ExecContext(ctx, "INSERT INTO orders (id, total) VALUES (1, 1)"); err != nil {
		t.Fatalf("ExecContext failed: %v", err)
	}
	if err := txdb.Unwrap().Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if got := len(p.Root.CustomTimings["sql-tx"]); got != 1 {
		t.Errorf("Expected 1 sql-tx timing, got %d", got)
	}
}

func TestWrap_MinSave(t *testing.T) {
	db := Wrap(openTestDB(t), WithMinSaveMilliseconds(5))
	ctx, p, _ := startSession(t)

	if _, err := db.ExecContext(ctx, "DELETE FROM orders"); err != nil {
		t.Fatalf("ExecContext failed: %v", err)
	}
	if got := len(sqlTimings(p)); got != 0 {
		t.Errorf("Expected fast command to be dropped, got %d timings", got)
	}
}

func TestWrap_NoSession(t *testing.T) {
	db := Wrap(openTestDB(t))
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "INSERT INTO orders (id, total) VALUES (1, 1)"); err != nil {
		t.Fatalf("ExecContext failed: %v", err)
	}
	rows, err := db.QueryContext(ctx, "SELECT id FROM orders")
	if err != nil {
		t.Fatalf("QueryContext failed: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Error("Expected a row")
	}
}
