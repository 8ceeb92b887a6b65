package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// AppConfig is the optional pipectl.toml application config (SPEC_FULL.md
// §4.8): where the pi binary lives, and defaults the CLI falls back to
// when a pipeline document or flag doesn't say otherwise.
type AppConfig struct {
	PiPath             string `toml:"pi_path"`
	DefaultTimeoutSecs int    `toml:"default_timeout_secs"`
	HistoryDBPath      string `toml:"history_db_path"`
}

// DefaultAppConfig is used when no pipectl.toml is present.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		PiPath:             "pi",
		DefaultTimeoutSecs: 300,
		HistoryDBPath:      "pipectl_history.db",
	}
}

// LoadAppConfig reads path as TOML, if it exists. A missing file is not an
// error: it yields DefaultAppConfig unchanged (pipectl.toml is optional).
func LoadAppConfig(path string) (AppConfig, error) {
	cfg := DefaultAppConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return cfg, nil
}
