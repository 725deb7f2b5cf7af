// Package config provides configuration management for stopwatch.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("stopwatch.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("stopwatch.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention STOPWATCH_SECTION_FIELD and are
// decoded with envconfig. For example:
//
//   - STOPWATCH_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - STOPWATCH_STORAGE_BACKEND overrides storage.backend
//   - STOPWATCH_STORAGE_ELASTICSEARCH_ADDRESSES overrides storage.elasticsearch.addresses
//     (comma separated)
//   - STOPWATCH_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
// For process-wide access, call Initialize once at startup and GetConfig afterwards.
// A Watcher reloads the file on change and swaps the singleton when the new
// configuration validates.
package config
