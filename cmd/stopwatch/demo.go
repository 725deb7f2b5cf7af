package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mercator-hq/stopwatch/pkg/profiler"
	"mercator-hq/stopwatch/pkg/profiler/dbprof"
	"mercator-hq/stopwatch/pkg/profiler/httpprof"
)

// demoApp is a small order service instrumented with steps, SQL timings and
// outbound HTTP timings. serve mounts it so there is something to profile.
type demoApp struct {
	sqlDB    *sql.DB
	db       *dbprof.DB[*sql.DB]
	client   *http.Client
	upstream string
	logger   *slog.Logger
}

type order struct {
	ID       int64   `json:"id"`
	Customer string  `json:"customer"`
	Total    float64 `json:"total"`
	Items    []item  `json:"items,omitempty"`
}

type item struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// newDemoApp opens an in-memory SQLite database and seeds it. upstream is the base
// URL the checkout handler calls for exchange rates.
func newDemoApp(ctx context.Context, upstream string, logger *slog.Logger) (*demoApp, error) {
	sqlDB, err := sql.Open("sqlite", "file:stopwatch-demo?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open demo database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	app := &demoApp{
		sqlDB:    sqlDB,
		db:       dbprof.Wrap(sqlDB),
		client:   httpprof.NewClient(nil),
		upstream: upstream,
		logger:   logger.With("component", "demo"),
	}
	if err := app.seed(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return app, nil
}

func (a *demoApp) seed(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (id INTEGER PRIMARY KEY, customer TEXT NOT NULL, total REAL NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS order_items (order_id INTEGER NOT NULL, sku TEXT NOT NULL, quantity INTEGER NOT NULL)`,
		`DELETE FROM order_items`,
		`DELETE FROM orders`,
	}
	for _, stmt := range stmts {
		if _, err := a.sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare demo schema: %w", err)
		}
	}
	for i := int64(1); i <= 5; i++ {
		if _, err := a.sqlDB.ExecContext(ctx, `INSERT INTO orders (id, customer, total) VALUES (?, ?, ?)`,
			i, fmt.Sprintf("customer-%d", i), float64(i)*12.5); err != nil {
			return fmt.Errorf("failed to seed demo orders: %w", err)
		}
		if _, err := a.sqlDB.ExecContext(ctx, `INSERT INTO order_items (order_id, sku, quantity) VALUES (?, ?, ?), (?, ?, ?)`,
			i, "SKU-A", i, i, "SKU-B", 1); err != nil {
			return fmt.Errorf("failed to seed demo items: %w", err)
		}
	}
	return nil
}

// Close releases the demo database.
func (a *demoApp) Close() error {
	return a.sqlDB.Close()
}

// Handler routes the demo endpoints on a net/http mux.
func (a *demoApp) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", a.listOrders)
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		a.getOrder(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /rates", a.rates)
	mux.HandleFunc("POST /checkout", a.checkout)
	return mux
}

// GinHandler routes the demo endpoints on a gin engine that profiles its own
// requests.
func (a *demoApp) GinHandler(profiling *httpprof.Config) http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), httpprof.Gin(profiling))
	engine.GET("/orders", gin.WrapF(a.listOrders))
	engine.GET("/orders/:id", func(c *gin.Context) {
		a.getOrder(c.Writer, c.Request, c.Param("id"))
	})
	engine.GET("/rates", gin.WrapF(a.rates))
	engine.POST("/checkout", gin.WrapF(a.checkout))
	return engine
}

// listOrders loads every order, then its items one query at a time so the tree
// shows duplicate SQL.
func (a *demoApp) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	loadCtx, load := profiler.Step(ctx, "load orders")
	orders, err := a.queryOrders(loadCtx)
	if err == nil {
		for i := range orders {
			if orders[i].Items, err = a.queryItems(loadCtx, orders[i].ID); err != nil {
				break
			}
		}
	}
	load.Stop()
	if err != nil {
		a.fail(w, r, err)
		return
	}

	_, render := profiler.Step(ctx, "render")
	defer render.Stop()
	writeDemoJSON(w, http.StatusOK, orders)
}

func (a *demoApp) getOrder(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	ctx, step := profiler.Step(r.Context(), "load order")
	defer step.Stop()

	var o order
	err = a.db.QueryRowContext(ctx, `SELECT id, customer, total FROM orders WHERE id = ?`, id).
		Scan(&o.ID, &o.Customer, &o.Total)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err == nil {
		o.Items, err = a.queryItems(ctx, id)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeDemoJSON(w, http.StatusOK, o)
}

// rates stands in for a slow dependency.
func (a *demoApp) rates(w http.ResponseWriter, r *http.Request) {
	_, step := profiler.Step(r.Context(), "compute rates")
	time.Sleep(5 * time.Millisecond)
	step.Stop()
	writeDemoJSON(w, http.StatusOK, map[string]float64{"EUR": 0.92, "GBP": 0.79})
}

// checkout fetches rates over HTTP and records an order.
func (a *demoApp) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ratesCtx, step := profiler.Step(ctx, "fetch rates")
	var rates map[string]float64
	err := a.fetchJSON(ratesCtx, a.upstream+"/rates", &rates)
	step.Stop()
	if err != nil {
		a.fail(w, r, err)
		return
	}

	saveCtx, save := profiler.Step(ctx, "save order")
	defer save.Stop()
	res, err := a.db.ExecContext(saveCtx, `INSERT INTO orders (customer, total) VALUES (?, ?)`, "checkout", 10*rates["EUR"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	id, _ := res.LastInsertId()
	writeDemoJSON(w, http.StatusCreated, order{ID: id, Customer: "checkout", Total: 10 * rates["EUR"]})
}

func (a *demoApp) queryOrders(ctx context.Context) ([]order, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, customer, total FROM orders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []order
	for rows.Next() {
		var o order
		if err := rows.Scan(&o.ID, &o.Customer, &o.Total); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (a *demoApp) queryItems(ctx context.Context, orderID int64) ([]item, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT sku, quantity FROM order_items WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []item
	for rows.Next() {
		var it item
		if err := rows.Scan(&it.SKU, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (a *demoApp) fetchJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("upstream %s returned %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (a *demoApp) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.ErrorContext(r.Context(), "demo request failed", "path", r.URL.Path, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeDemoJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
