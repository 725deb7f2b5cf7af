package config

import (
	"sync"
	"testing"
)

func resetSingleton(t *testing.T) {
	t.Helper()
	current.Store(nil)
	initOnce = sync.Once{}
	t.Cleanup(func() {
		current.Store(nil)
		initOnce = sync.Once{}
	})
}

func TestInitialize(t *testing.T) {
	resetSingleton(t)
	path := writeConfig(t, "server:\n  listen_address: \"127.0.0.1:9000\"\n")

	if err := Initialize(path); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config after initialization")
	}
	if cfg.Server.ListenAddress != "127.0.0.1:9000" {
		t.Errorf("expected listen address %q, got %q", "127.0.0.1:9000", cfg.Server.ListenAddress)
	}
}

func TestInitialize_MultipleCallsIgnored(t *testing.T) {
	resetSingleton(t)
	first := writeConfig(t, "server:\n  listen_address: \"127.0.0.1:9000\"\n")
	second := writeConfig(t, "server:\n  listen_address: \"127.0.0.1:9001\"\n")

	if err := Initialize(first); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}
	if err := Initialize(second); err != nil {
		t.Fatalf("second initialize returned error: %v", err)
	}
	if got := GetConfig().Server.ListenAddress; got != "127.0.0.1:9000" {
		t.Errorf("expected first config to win, got %q", got)
	}
}

func TestInitialize_Error(t *testing.T) {
	resetSingleton(t)
	path := writeConfig(t, "storage:\n  backend: redis\n")

	if err := Initialize(path); err == nil {
		t.Fatal("expected error for invalid config")
	}
	if GetConfig() != nil {
		t.Error("expected no config after failed initialization")
	}
}

func TestReloadConfig(t *testing.T) {
	resetSingleton(t)
	SetConfig(Default())

	path := writeConfig(t, "storage:\n  backend: none\n")
	cfg, err := ReloadConfig(path)
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if cfg.Storage.Backend != "none" || GetConfig() != cfg {
		t.Error("expected reloaded config to replace the singleton")
	}

	bad := writeConfig(t, "storage:\n  backend: redis\n")
	if _, err := ReloadConfig(bad); err == nil {
		t.Fatal("expected reload error")
	}
	if GetConfig() != cfg {
		t.Error("expected failed reload to keep the previous config")
	}
}

func TestSetConfig(t *testing.T) {
	resetSingleton(t)
	if GetConfig() != nil {
		t.Fatal("expected no config before SetConfig")
	}

	cfg := Default()
	SetConfig(cfg)
	if GetConfig() != cfg || MustGetConfig() != cfg {
		t.Error("expected SetConfig to install the given config")
	}
}

func TestMustGetConfig(t *testing.T) {
	resetSingleton(t)

	defer func() {
		if recover() == nil {
			t.Error("expected panic without configuration")
		}
	}()
	MustGetConfig()
}
