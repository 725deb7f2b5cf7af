package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/stopwatch/pkg/cli"
	"mercator-hq/stopwatch/pkg/config"
	"mercator-hq/stopwatch/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "stopwatch",
	Short: "Stopwatch - request profiling with per-step SQL and HTTP timings",
	Long: `Stopwatch records a timing tree for every profiled request: nested steps, plus
the SQL commands and outbound HTTP calls issued inside each step, with duplicate and
trivial timings flagged.

Sessions are kept in memory, SQLite, PostgreSQL or Elasticsearch and can be browsed
over HTTP or from this command line.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and STOPWATCH_ environment only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig loads the configuration named by --config, applies environment and
// flag overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err.Error())
	}
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
		if err := config.Validate(cfg); err != nil {
			return nil, cli.NewConfigError(cfgFile, err.Error())
		}
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging section. A non-nil level
// lets the caller change the level later.
func newLogger(cfg *config.Config, w io.Writer, level *slog.LevelVar) (*slog.Logger, error) {
	return logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		Writer:    w,
		LevelVar:  level,
	})
}
