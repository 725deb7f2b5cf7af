package config

import (
	"reflect"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}

	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("expected backend %q, got %q", DefaultStorageBackend, cfg.Storage.Backend)
	}
	if !cfg.Profiler.ShowTrivialWithChildren || !cfg.Profiler.PruneTrivialTimings {
		t.Error("expected trivial timing flags to default to true")
	}
	if cfg.Profiler.MaxUnviewedProfiles != DefaultMaxUnviewedProfiles {
		t.Errorf("expected max unviewed %d, got %d", DefaultMaxUnviewedProfiles, cfg.Profiler.MaxUnviewedProfiles)
	}
	if cfg.Retention.MaxAge != 24*time.Hour {
		t.Errorf("expected retention max age 24h, got %v", cfg.Retention.MaxAge)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics to be enabled by default")
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	first := *cfg
	ApplyDefaults(cfg)

	if !reflect.DeepEqual(first, *cfg) {
		t.Error("expected ApplyDefaults to be idempotent")
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.ListenAddress = "0.0.0.0:9000"
	cfg.Storage.SQLite.Path = "/var/lib/stopwatch.db"
	cfg.Profiler.IgnoredPaths = []string{}
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("expected listen address to be kept, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Storage.SQLite.Path != "/var/lib/stopwatch.db" {
		t.Errorf("expected sqlite path to be kept, got %q", cfg.Storage.SQLite.Path)
	}
	if len(cfg.Profiler.IgnoredPaths) != 0 {
		t.Errorf("expected explicitly empty ignored paths to stay empty, got %v", cfg.Profiler.IgnoredPaths)
	}
}

func TestProfilerConfig_Options(t *testing.T) {
	cfg := Default()
	cfg.Profiler.TrivialDurationThresholdMilliseconds = 5
	cfg.Profiler.ShowTrivialWithChildren = false
	cfg.Profiler.NormalizeDuplicateCommands = true
	cfg.Profiler.MaxUnviewedProfiles = 3
	cfg.Profiler.MachineName = "web-01"

	opts := cfg.Profiler.Options()
	if opts.TrivialDurationThresholdMilliseconds != 5 {
		t.Errorf("expected threshold 5, got %v", opts.TrivialDurationThresholdMilliseconds)
	}
	if opts.ShowTrivialWithChildren || !opts.PruneTrivialTimings || !opts.NormalizeDuplicateCommands {
		t.Errorf("unexpected flags: %+v", opts)
	}
	if opts.MaxUnviewedProfiles != 3 || opts.MachineName != "web-01" {
		t.Errorf("unexpected options: %+v", opts)
	}
	if !reflect.DeepEqual(opts.IgnoredDuplicateExecuteTypes, []string{"Open", "OpenAsync"}) {
		t.Errorf("unexpected ignored execute types: %v", opts.IgnoredDuplicateExecuteTypes)
	}
	if opts.Storage != nil {
		t.Error("expected storage to be left for the caller")
	}
}
