// Package config loads substrate's on-disk configuration, following the
// teacher pack's XDG-resolved TOML pattern (noisetorch-NoiseTorch/config.go).
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds every substrate-wide setting loadable from
// $XDG_CONFIG_HOME/substrate/config.toml. VatDir, ClipboardDir, DaemonToken
// and DaemonAddress are overridable by SUBSTRATE_VAT_DIR,
// SUBSTRATE_CLIPBOARD_DIR, SUBSTRATE_DAEMON_TOKEN and
// SUBSTRATE_DAEMON_ADDRESS; the other fields have no environment override.
type Config struct {
	VatDir             string
	ClipboardDir       string
	DaemonAddress      string
	DaemonToken        string
	BroadcastBindAddr  string
	ScanIntervalMillis int
	DefaultColorMode   string
}

const configFileName = "config.toml"

// Default returns the built-in defaults, matching the fallbacks spec.md's
// environment-variable table names.
func Default() Config {
	return Config{
		VatDir:             filepath.Join(os.TempDir(), "substrate", "vats"),
		ClipboardDir:       filepath.Join(os.TempDir(), "substrate", "clipboard"),
		DaemonAddress:      "127.0.0.1:7777",
		BroadcastBindAddr:  "127.0.0.1:8088",
		ScanIntervalMillis: 2000,
		DefaultColorMode:   "multi-channel",
	}
}

// Load reads config.toml from the XDG config directory, applying
// environment variable overrides, and writing out the defaults if no file
// exists yet.
func Load() (Config, error) {
	cfg := Default()

	dir := configDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return cfg, fmt.Errorf("config: create config dir: %w", err)
	}
	path := filepath.Join(dir, configFileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Write(cfg); err != nil {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Write persists cfg to the XDG config directory.
func Write(cfg Config) error {
	path := filepath.Join(configDir(), configFileName)
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(&cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SUBSTRATE_VAT_DIR"); v != "" {
		cfg.VatDir = v
	}
	if v := os.Getenv("SUBSTRATE_CLIPBOARD_DIR"); v != "" {
		cfg.ClipboardDir = v
	}
	if v := os.Getenv("SUBSTRATE_DAEMON_TOKEN"); v != "" {
		cfg.DaemonToken = v
	}
	if v := os.Getenv("SUBSTRATE_DAEMON_ADDRESS"); v != "" {
		cfg.DaemonAddress = v
	}
}

func configDir() string {
	return filepath.Join(xdgOrFallback("XDG_CONFIG_HOME", filepath.Join(os.Getenv("HOME"), ".config")), "substrate")
}

func xdgOrFallback(xdg, fallback string) string {
	if dir := os.Getenv(xdg); dir != "" {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir
		}
	}
	return fallback
}
