package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Storage backends accepted in storage.backend and storage.multi.
const (
	BackendNone          = "none"
	BackendMemory        = "memory"
	BackendSQLite        = "sqlite"
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
	BackendMulti         = "multi"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

var validLogFormats = map[string]bool{"json": true, "text": true, "console": true}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and returned
// together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProfiler(&cfg.Profiler)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateProfiler(cfg *ProfilerConfig) []FieldError {
	var errs []FieldError

	if cfg.TrivialDurationThresholdMilliseconds < 0 {
		errs = append(errs, FieldError{
			Field:   "profiler.trivial_duration_threshold_ms",
			Message: "threshold must be non-negative",
		})
	}
	if cfg.MaxUnviewedProfiles < 0 {
		errs = append(errs, FieldError{
			Field:   "profiler.max_unviewed_profiles",
			Message: "max unviewed profiles must be non-negative",
		})
	}
	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	backends := []string{cfg.Backend}
	switch cfg.Backend {
	case BackendNone, BackendMemory, BackendSQLite, BackendPostgres, BackendElasticsearch:
	case BackendMulti:
		if len(cfg.Multi) == 0 {
			errs = append(errs, FieldError{
				Field:   "storage.multi",
				Message: "at least one backend is required when backend is \"multi\"",
			})
		}
		backends = nil
		for i, b := range cfg.Multi {
			switch b {
			case BackendMemory, BackendSQLite, BackendPostgres, BackendElasticsearch:
				backends = append(backends, b)
			default:
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("storage.multi[%d]", i),
					Message: fmt.Sprintf("unsupported backend %q", b),
				})
			}
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unsupported backend %q (must be none, memory, sqlite, postgres, elasticsearch or multi)", cfg.Backend),
		})
		backends = nil
	}

	for _, b := range backends {
		switch b {
		case BackendMemory:
			if cfg.Memory.CacheDuration < 0 {
				errs = append(errs, FieldError{Field: "storage.memory.cache_duration", Message: "cache duration must be positive"})
			}
			if cfg.Memory.MaxSessions < 0 {
				errs = append(errs, FieldError{Field: "storage.memory.max_sessions", Message: "max sessions must be positive"})
			}
		case BackendSQLite:
			if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
				errs = append(errs, FieldError{
					Field:   "storage.sqlite.driver",
					Message: fmt.Sprintf("unsupported driver %q (must be sqlite or sqlite3)", cfg.SQLite.Driver),
				})
			}
			if cfg.SQLite.Path == "" {
				errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "path is required"})
			}
			if cfg.SQLite.BusyTimeout < 0 {
				errs = append(errs, FieldError{Field: "storage.sqlite.busy_timeout", Message: "busy timeout must be non-negative"})
			}
		case BackendPostgres:
			if cfg.Postgres.DSN == "" {
				errs = append(errs, FieldError{Field: "storage.postgres.dsn", Message: "dsn is required"})
			}
		case BackendElasticsearch:
			for i, addr := range cfg.Elasticsearch.Addresses {
				if u, err := url.Parse(addr); err != nil || u.Scheme == "" || u.Host == "" {
					errs = append(errs, FieldError{
						Field:   fmt.Sprintf("storage.elasticsearch.addresses[%d]", i),
						Message: fmt.Sprintf("invalid URL %q", addr),
					})
				}
			}
			if cfg.Elasticsearch.Index == "" {
				errs = append(errs, FieldError{Field: "storage.elasticsearch.index", Message: "index is required"})
			}
			switch cfg.Elasticsearch.Refresh {
			case "wait_for", "true", "false":
			default:
				errs = append(errs, FieldError{
					Field:   "storage.elasticsearch.refresh",
					Message: fmt.Sprintf("invalid refresh %q (must be wait_for, true or false)", cfg.Elasticsearch.Refresh),
				})
			}
		}
	}
	return errs
}

func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "retention.max_age", Message: "max age must be non-negative"})
	}
	if cfg.MaxCount < 0 {
		errs = append(errs, FieldError{Field: "retention.max_count", Message: "max count must be non-negative"})
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "retention.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	if !strings.HasPrefix(cfg.ResultsPath, "/") || !strings.HasSuffix(cfg.ResultsPath, "/") {
		errs = append(errs, FieldError{
			Field:   "server.results_path",
			Message: "results path must start and end with \"/\"",
		})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}
	if !validLogFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json, text or console)", cfg.Logging.Format),
		})
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with \"/\"",
		})
	}
	return errs
}
