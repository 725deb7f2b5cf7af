package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"mercator-hq/stopwatch/pkg/config"
	"mercator-hq/stopwatch/pkg/profiler/httpprof"
	"mercator-hq/stopwatch/pkg/telemetry/health"
	"mercator-hq/stopwatch/pkg/telemetry/metrics"
)

// Options are the components a Server mounts. Nil components are not mounted.
type Options struct {
	// Profiling configures the middleware around App and the results endpoints.
	Profiling *httpprof.Config

	// Collector serves /metrics when its metrics are enabled.
	Collector *metrics.Collector

	// MetricsPath is where Collector is mounted.
	// Default: "/metrics"
	MetricsPath string

	// Checker backs /health and /ready.
	Checker *health.Checker

	// App is the profiled application.
	App http.Handler

	// AppProfiled means App starts its own sessions, as a gin engine using
	// httpprof.Gin does, so the profiling middleware is not applied to it.
	AppProfiled bool

	Version   string
	Commit    string
	BuildTime string

	Logger *slog.Logger
}

// Server is the stopwatch HTTP server.
type Server struct {
	config     *config.ServerConfig
	opts       Options
	logger     *slog.Logger
	httpServer *http.Server

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a new server.
func NewServer(cfg *config.ServerConfig, opts Options) *Server {
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultMetricsPath
	}
	if opts.Checker == nil {
		opts.Checker = health.New(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config: cfg,
		opts:   opts,
		logger: logger.With("component", "server"),
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"address", s.config.ListenAddress,
			"results_path", s.config.ResultsPath,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully shuts down the server. Only the first call has an effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running, httpServer := s.isRunning, s.httpServer
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	health.Register(mux, s.opts.Checker, s.opts.Version, s.opts.Commit, s.opts.BuildTime)

	if s.opts.Collector != nil && s.opts.Collector.Enabled() {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.Collector.Handler())
	}

	if s.opts.Profiling != nil {
		prefix := strings.TrimSuffix(s.config.ResultsPath, "/")
		mux.Handle(prefix+"/", http.StripPrefix(prefix, httpprof.Handler(s.opts.Profiling)))
	}

	if s.opts.App != nil {
		app := s.opts.App
		if s.opts.Profiling != nil && !s.opts.AppProfiled {
			app = httpprof.Middleware(s.opts.Profiling)(app)
		}
		mux.Handle("/", app)
	}

	var handler http.Handler = mux
	handler = LoggingMiddleware(s.logger)(handler)
	// Recovery middleware (outermost)
	handler = RecoveryMiddleware(s.logger)(handler)
	return handler
}
