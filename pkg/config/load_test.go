package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stopwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
profiler:
  trivial_duration_threshold_ms: 1.5
  show_trivial_with_children: false
  max_unviewed_profiles: 5

storage:
  backend: "sqlite"
  sqlite:
    driver: "sqlite3"
    path: "./test.db"
    busy_timeout: "2s"

retention:
  max_age: "6h"
  schedule: "*/15 * * * *"

server:
  listen_address: "0.0.0.0:8080"
  read_timeout: "60s"

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Profiler.TrivialDurationThresholdMilliseconds != 1.5 {
		t.Errorf("expected threshold 1.5, got %v", cfg.Profiler.TrivialDurationThresholdMilliseconds)
	}
	if cfg.Profiler.ShowTrivialWithChildren {
		t.Error("expected explicit false to override the default")
	}
	if !cfg.Profiler.PruneTrivialTimings {
		t.Error("expected omitted bool to keep its default")
	}
	if cfg.Storage.SQLite.Driver != "sqlite3" || cfg.Storage.SQLite.BusyTimeout != 2*time.Second {
		t.Errorf("unexpected sqlite config: %+v", cfg.Storage.SQLite)
	}
	if !cfg.Storage.SQLite.WALMode {
		t.Error("expected WAL mode to default to true")
	}
	if cfg.Retention.MaxAge != 6*time.Hour {
		t.Errorf("expected max age 6h, got %v", cfg.Retention.MaxAge)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout 60s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("expected default write timeout, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q, got %q", "debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_DisablesRetention(t *testing.T) {
	path := writeConfig(t, `
retention:
  max_age: 0s
  schedule: ""
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Retention.MaxAge != 0 || cfg.Retention.Schedule != "" {
		t.Errorf("expected retention to be disabled, got %+v", cfg.Retention)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"invalid yaml", "storage: [unclosed", "failed to parse"},
		{"invalid backend", "storage:\n  backend: redis\n", "storage.backend"},
		{"invalid schedule", "retention:\n  schedule: \"every hour\"\n", "retention.schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:8080"
storage:
  backend: "memory"
`)

	t.Setenv("STOPWATCH_SERVER_LISTEN_ADDRESS", "0.0.0.0:9090")
	t.Setenv("STOPWATCH_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("STOPWATCH_STORAGE_BACKEND", "elasticsearch")
	t.Setenv("STOPWATCH_STORAGE_ELASTICSEARCH_ADDRESSES", "http://es-1:9200,http://es-2:9200")
	t.Setenv("STOPWATCH_PROFILER_MAX_UNVIEWED_PROFILES", "7")
	t.Setenv("STOPWATCH_PROFILER_PRUNE_TRIVIAL_TIMINGS", "false")
	t.Setenv("STOPWATCH_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected env listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("expected env read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Backend != "elasticsearch" {
		t.Errorf("expected env backend, got %q", cfg.Storage.Backend)
	}
	want := []string{"http://es-1:9200", "http://es-2:9200"}
	if !reflect.DeepEqual(cfg.Storage.Elasticsearch.Addresses, want) {
		t.Errorf("expected addresses %v, got %v", want, cfg.Storage.Elasticsearch.Addresses)
	}
	if cfg.Profiler.MaxUnviewedProfiles != 7 || cfg.Profiler.PruneTrivialTimings {
		t.Errorf("unexpected profiler overrides: %+v", cfg.Profiler)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected env log level, got %q", cfg.Telemetry.Logging.Level)
	}
	if cfg.Telemetry.Logging.Format != DefaultLoggingFormat {
		t.Errorf("expected unset env var to leave format alone, got %q", cfg.Telemetry.Logging.Format)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("STOPWATCH_STORAGE_BACKEND", "none")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Storage.Backend != "none" {
		t.Errorf("expected backend none, got %q", cfg.Storage.Backend)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidOverride(t *testing.T) {
	t.Setenv("STOPWATCH_SERVER_READ_TIMEOUT", "soon")
	if _, err := LoadConfigWithEnvOverrides(""); err == nil {
		t.Fatal("expected error for undecodable env value")
	}
}

func TestLoadConfigWithEnvOverrides_InvalidResult(t *testing.T) {
	t.Setenv("STOPWATCH_TELEMETRY_LOGGING_FORMAT", "xml")
	_, err := LoadConfigWithEnvOverrides("")
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
