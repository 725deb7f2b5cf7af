package httpprof

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"mercator-hq/stopwatch/pkg/profiler"
	"mercator-hq/stopwatch/pkg/telemetry/logging"
)

// HeaderIDs is the response header listing session ids for the client.
const HeaderIDs = "X-MiniProfiler-Ids"

// Config contains configuration for the HTTP integration.
type Config struct {
	// Options are passed to every session. Options.Storage is also the store the
	// results handler reads from.
	Options *profiler.Options

	// IgnoredPaths are case-insensitive substrings of request paths that are never
	// profiled.
	// Default: ["/favicon.ico", "/metrics", "/health", "/profiler/"]
	IgnoredPaths []string

	// ShouldProfile, when set, is consulted after IgnoredPaths.
	ShouldProfile func(r *http.Request) bool

	// UserFunc identifies the user a session belongs to.
	// Default: the client IP address
	UserFunc func(r *http.Request) string

	// NameFunc names the session.
	// Default: method and path, e.g. "GET /orders"
	NameFunc func(r *http.Request) string

	// DiscardFunc, when set, decides from the response status whether the session is
	// thrown away instead of saved.
	DiscardFunc func(r *http.Request, status int) bool

	// Logger is used for request-level diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns the default HTTP configuration.
func DefaultConfig() *Config {
	return &Config{
		Options:      profiler.DefaultOptions(),
		IgnoredPaths: []string{"/favicon.ico", "/metrics", "/health", "/profiler/"},
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Options == nil {
		out.Options = profiler.DefaultOptions()
	}
	if out.UserFunc == nil {
		out.UserFunc = RemoteIP
	}
	if out.NameFunc == nil {
		out.NameFunc = func(r *http.Request) string { return r.Method + " " + r.URL.Path }
	}
	if out.Logger == nil {
		out.Logger = slog.Default().With("component", "profiler.http")
	}
	return &out
}

// RemoteIP returns the host part of r.RemoteAddr.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (c *Config) shouldProfile(r *http.Request) bool {
	path := strings.ToLower(r.URL.Path)
	for _, ignored := range c.IgnoredPaths {
		if ignored != "" && strings.Contains(path, strings.ToLower(ignored)) {
			return false
		}
	}
	if c.ShouldProfile != nil {
		return c.ShouldProfile(r)
	}
	return true
}

// begin starts the request's session and computes the ids header value.
func (c *Config) begin(r *http.Request, name string) (context.Context, *profiler.Profiler, string) {
	user := c.UserFunc(r)
	ctx, p := profiler.Start(profiler.WithUser(r.Context(), user), name, c.Options)

	_, prep := profiler.StepIf(ctx, "profiler prep", 0.1, false)
	ids := c.unviewedIDs(ctx, user)
	prep.Stop()

	ids = append(ids, p.ID)
	header, err := json.Marshal(ids)
	if err != nil {
		return ctx, p, ""
	}
	return ctx, p, string(header)
}

func (c *Config) unviewedIDs(ctx context.Context, user string) []string {
	if c.Options.Storage == nil {
		return nil
	}
	ids, err := c.Options.Storage.GetUnviewedIDs(ctx, user)
	if err != nil {
		c.Logger.Warn("failed to read unviewed sessions", "user", user, "error", err)
		return nil
	}
	return ids
}

// end stops the session once the handler has returned.
func (c *Config) end(ctx context.Context, p *profiler.Profiler, r *http.Request, status int) {
	discard := c.DiscardFunc != nil && c.DiscardFunc(r, status)
	logger := logging.WithProfiler(ctx, c.Logger)

	// The request context is cancelled when the client goes away; the save must not be.
	if _, err := p.Stop(context.WithoutCancel(ctx), discard); err != nil {
		logger.Warn("failed to store request profile", "error", err)
		return
	}
	d, _ := p.Root.Duration()
	logger.Debug("request profiled",
		"status", status,
		"duration_ms", d,
		"discarded", discard,
	)
}

// Middleware profiles every request that passes the ignore rules.
func Middleware(cfg *Config) func(http.Handler) http.Handler {
	c := cfg.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !c.shouldProfile(r) {
				next.ServeHTTP(w, r)
				return
			}

			ctx, p, ids := c.begin(r, c.NameFunc(r))
			if ids != "" {
				w.Header().Set(HeaderIDs, ids)
			}

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() { c.end(ctx, p, r, rw.status) }()

			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

// responseWriter records the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
