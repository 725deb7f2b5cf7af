package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mercator-hq/stopwatch/pkg/cli"
	"mercator-hq/stopwatch/pkg/config"
	"mercator-hq/stopwatch/pkg/profiler/httpprof"
	"mercator-hq/stopwatch/pkg/profiler/retention"
	"mercator-hq/stopwatch/pkg/server"
	"mercator-hq/stopwatch/pkg/telemetry/health"
	"mercator-hq/stopwatch/pkg/telemetry/logging"
	"mercator-hq/stopwatch/pkg/telemetry/metrics"
)

var serveFlags struct {
	listenAddress string
	router        string
	watch         bool
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the profiled demo application and the results endpoints",
	Long: `Serve an instrumented demo order service together with the profiler endpoints.

Every demo request is profiled; the session ids are returned in the X-MiniProfiler-Ids
response header and can be fetched from the results endpoints.

Routes:
  GET  /orders, /orders/{id}, /rates     demo application
  POST /checkout                          demo application (outbound HTTP call)
  GET  <results_path>results?id=...       one session (format=text for a tree)
  GET  <results_path>results-index        session ids
  GET  <results_path>results-list         session summaries
  GET  /metrics, /health, /ready, /version

Examples:
  # Start with defaults (memory storage on 127.0.0.1:8080)
  stopwatch serve

  # Start with a config file, hot-reloading the log level
  stopwatch serve --config /etc/stopwatch/config.yaml

  # Route the demo through gin instead of net/http
  stopwatch serve --router gin`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.router, "router", "http", "demo router (http, gin)")
	serveCmd.Flags().BoolVar(&serveFlags.watch, "watch", true, "reload the config file when it changes")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.router != "http" && serveFlags.router != "gin" {
		return cli.NewCommandError("serve", fmt.Errorf("unknown router %q (want http or gin)", serveFlags.router))
	}
	config.SetConfig(cfg)

	var level slog.LevelVar
	logger, err := newLogger(cfg, os.Stderr, &level)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}
	slog.SetDefault(logger)

	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	a, err := newServeApp(ctx, cfg, logger, &level)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer a.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Results: http://%s%sresults-list\n", cfg.Server.ListenAddress, cfg.Server.ResultsPath)

	if err := a.server.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	return nil
}

// serveApp is everything serve runs, wired together.
type serveApp struct {
	store   *store
	demo    *demoApp
	pruners []*retention.Pruner
	watcher *config.Watcher
	server  *server.Server
}

func newServeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) (_ *serveApp, err error) {
	s := &serveApp{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())

	if s.store, err = openStorage(ctx, &cfg.Storage, logger); err != nil {
		return nil, err
	}

	opts := cfg.Profiler.Options()
	opts.Storage = s.store.Storage
	opts.Logger = logger.With("component", "profiler")
	opts.Metrics = collector.Profiler()

	checker := health.New(5 * time.Second)
	if s.store.Storage != nil {
		checker.RegisterCheck("storage", health.StorageCheck(s.store.Storage))
	}
	if len(s.store.prunable) > 0 {
		if counter, ok := s.store.prunable[0].(metrics.Counter); ok {
			collector.RegisterStoredSessions(counter)
		}
	}

	if cfg.Retention.MaxAge > 0 || cfg.Retention.MaxCount > 0 {
		for _, p := range newPruners(s.store, &cfg.Retention) {
			p.SetObserver(collector.ObservePrune)
			if err := p.Start(ctx); err != nil {
				return nil, fmt.Errorf("failed to start retention scheduler: %w", err)
			}
			s.pruners = append(s.pruners, p)
			if next := p.NextPruning(); next != nil {
				logger.Debug("retention scheduler started", "next_pruning", next)
			}
		}
	}

	profiling := httpprof.DefaultConfig()
	profiling.Options = opts
	profiling.IgnoredPaths = cfg.Profiler.IgnoredPaths
	profiling.Logger = logger.With("component", "profiler.http")

	if s.demo, err = newDemoApp(ctx, "http://"+cfg.Server.ListenAddress, logger); err != nil {
		return nil, err
	}
	handler, appProfiled := s.demo.Handler(), false
	if serveFlags.router == "gin" {
		gin.SetMode(gin.ReleaseMode)
		handler, appProfiled = s.demo.GinHandler(profiling), true
	}

	if cfgFile != "" && serveFlags.watch {
		s.watcher, err = config.NewWatcher(cfgFile, config.DefaultDebounceInterval, func(next *config.Config) {
			applyReload(next, level, logger)
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to watch config: %w", err)
		}
		go func() {
			if err := s.watcher.Watch(ctx); err != nil {
				logger.Error("config watcher failed", "error", err)
			}
		}()
	}

	s.server = server.NewServer(&cfg.Server, server.Options{
		Profiling:   profiling,
		Collector:   collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Checker:     checker,
		App:         handler,
		AppProfiled: appProfiled,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
		Logger:      logger,
	})
	return s, nil
}

// Close stops background work and releases storage.
func (a *serveApp) Close() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			slog.Warn("failed to stop config watcher", "error", err)
		}
	}
	for _, p := range a.pruners {
		p.Stop()
	}
	if a.demo != nil {
		a.demo.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("failed to close storage", "error", err)
		}
	}
}

// applyReload applies the settings that can change without a restart. Only the log
// level is live; everything else is logged so the operator knows a restart is due.
func applyReload(next *config.Config, level *slog.LevelVar, logger *slog.Logger) {
	l, err := logging.ParseLevel(next.Telemetry.Logging.Level)
	if err != nil {
		logger.Warn("ignoring reloaded log level", "level", next.Telemetry.Logging.Level, "error", err)
		return
	}
	if l != level.Level() {
		level.Set(l)
		logger.Info("log level changed", "level", l.String())
	}
	logger.Info("configuration reloaded, storage, retention and server changes apply after restart")
}
