package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("SUBSTRATE_VAT_DIR", "")
	t.Setenv("SUBSTRATE_CLIPBOARD_DIR", "")
	t.Setenv("SUBSTRATE_DAEMON_TOKEN", "")
	t.Setenv("SUBSTRATE_DAEMON_ADDRESS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DaemonAddress != "127.0.0.1:7777" {
		t.Fatalf("unexpected default daemon address: %q", cfg.DaemonAddress)
	}

	path := filepath.Join(dir, "substrate", "config.toml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("SUBSTRATE_DAEMON_TOKEN", "secret-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DaemonToken != "secret-token" {
		t.Fatalf("expected env override to apply, got %q", cfg.DaemonToken)
	}
}
