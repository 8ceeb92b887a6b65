package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadAppConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadAppConfig: %v", err)
	}
	if cfg != DefaultAppConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadAppConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipectl.toml")
	contents := `
pi_path = "/usr/local/bin/pi"
default_timeout_secs = 60
history_db_path = "custom.db"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadAppConfig(path)
	if err != nil {
		t.Fatalf("LoadAppConfig: %v", err)
	}
	if cfg.PiPath != "/usr/local/bin/pi" {
		t.Fatalf("expected pi_path override, got %q", cfg.PiPath)
	}
	if cfg.DefaultTimeoutSecs != 60 {
		t.Fatalf("expected default_timeout_secs override, got %d", cfg.DefaultTimeoutSecs)
	}
	if cfg.HistoryDBPath != "custom.db" {
		t.Fatalf("expected history_db_path override, got %q", cfg.HistoryDBPath)
	}
}

func TestLoadAppConfigMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipectl.toml")
	if err := os.WriteFile(path, []byte("not = [valid"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadAppConfig(path); err == nil {
		t.Fatalf("expected error for malformed TOML")
	}
}
