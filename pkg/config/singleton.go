package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// current is the process-wide configuration read by GetConfig. The config watcher
// swaps it on every successful reload.
var (
	current  atomic.Pointer[Config]
	initOnce sync.Once
)

// Initialize loads path with STOPWATCH_ overrides and installs the result. Only the
// first call does any work; later calls return nil without reading the file.
func Initialize(path string) error {
	var err error
	initOnce.Do(func() {
		var cfg *Config
		if cfg, err = LoadConfigWithEnvOverrides(path); err == nil {
			current.Store(cfg)
		}
	})
	return err
}

// GetConfig returns the installed configuration, or nil before Initialize or SetConfig.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig installs cfg. The CLI uses it after loading flags; tests use it to skip
// the file.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// ReloadConfig reads path again and installs it when it loads and validates. On error
// the installed configuration is left alone.
func ReloadConfig(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}
	current.Store(cfg)
	return cfg, nil
}

// MustGetConfig is GetConfig for callers that cannot run unconfigured.
func MustGetConfig() *Config {
	cfg := current.Load()
	if cfg == nil {
		panic("config: not initialized")
	}
	return cfg
}
