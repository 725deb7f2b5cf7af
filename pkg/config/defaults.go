package config

import "time"

// Default values for configuration fields.
const (
	// Profiler defaults
	DefaultTrivialDurationThresholdMs = 2.0
	DefaultShowTrivialWithChildren    = true
	DefaultPruneTrivialTimings        = true
	DefaultMaxUnviewedProfiles        = 20

	// Storage defaults
	DefaultStorageBackend            = "memory"
	DefaultMemoryCacheDuration       = time.Hour
	DefaultMemoryMaxSessions         = int64(10000)
	DefaultSQLiteDriver              = "sqlite"
	DefaultSQLitePath                = "data/stopwatch.db"
	DefaultSQLiteMaxOpenConns        = 1
	DefaultSQLiteWALMode             = true
	DefaultSQLiteBusyTimeout         = 5 * time.Second
	DefaultPostgresMaxOpenConns      = 10
	DefaultPostgresMaxIdleConns      = 5
	DefaultElasticsearchAddress      = "http://localhost:9200"
	DefaultElasticsearchIndex        = "stopwatch-profilers"
	DefaultElasticsearchRefresh      = "wait_for"

	// Retention defaults
	DefaultRetentionMaxAge   = 24 * time.Hour
	DefaultRetentionSchedule = "0 * * * *"

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultResultsPath     = "/profiler/"

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultMetricsEnabled = true
	DefaultMetricsPath    = "/metrics"
)

// Default returns a Config with every default applied, including the boolean
// defaults that ApplyDefaults cannot tell apart from an explicit false.
func Default() *Config {
	cfg := &Config{}
	cfg.Profiler.ShowTrivialWithChildren = DefaultShowTrivialWithChildren
	cfg.Profiler.PruneTrivialTimings = DefaultPruneTrivialTimings
	cfg.Storage.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Profiler.MaxUnviewedProfiles = DefaultMaxUnviewedProfiles
	cfg.Retention.MaxAge = DefaultRetentionMaxAge
	cfg.Retention.Schedule = DefaultRetentionSchedule
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
//
// Booleans, MaxUnviewedProfiles and the retention settings treat zero as a real
// value; their defaults come from Default, which LoadConfig decodes on top of.
func ApplyDefaults(cfg *Config) {
	// Profiler defaults
	if cfg.Profiler.TrivialDurationThresholdMilliseconds == 0 {
		cfg.Profiler.TrivialDurationThresholdMilliseconds = DefaultTrivialDurationThresholdMs
	}
	if cfg.Profiler.IgnoredDuplicateExecuteTypes == nil {
		cfg.Profiler.IgnoredDuplicateExecuteTypes = []string{"Open", "OpenAsync"}
	}
	if cfg.Profiler.IgnoredPaths == nil {
		cfg.Profiler.IgnoredPaths = []string{"/favicon.ico", "/metrics", "/health", "/profiler/"}
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.Memory.CacheDuration == 0 {
		cfg.Storage.Memory.CacheDuration = DefaultMemoryCacheDuration
	}
	if cfg.Storage.Memory.MaxSessions == 0 {
		cfg.Storage.Memory.MaxSessions = DefaultMemoryMaxSessions
	}
	if cfg.Storage.SQLite.Driver == "" {
		cfg.Storage.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.Postgres.MaxOpenConns == 0 {
		cfg.Storage.Postgres.MaxOpenConns = DefaultPostgresMaxOpenConns
	}
	if cfg.Storage.Postgres.MaxIdleConns == 0 {
		cfg.Storage.Postgres.MaxIdleConns = DefaultPostgresMaxIdleConns
	}
	if len(cfg.Storage.Elasticsearch.Addresses) == 0 {
		cfg.Storage.Elasticsearch.Addresses = []string{DefaultElasticsearchAddress}
	}
	if cfg.Storage.Elasticsearch.Index == "" {
		cfg.Storage.Elasticsearch.Index = DefaultElasticsearchIndex
	}
	if cfg.Storage.Elasticsearch.Refresh == "" {
		cfg.Storage.Elasticsearch.Refresh = DefaultElasticsearchRefresh
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.ResultsPath == "" {
		cfg.Server.ResultsPath = DefaultResultsPath
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}
