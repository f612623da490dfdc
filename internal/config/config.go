// Package config loads the daemon configuration from a YAML file with
// environment variable overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/hweilin/tillsync/internal/errors"
)

// Remote holds the backend endpoint settings.
type Remote struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Config is the daemon's full configuration.
type Config struct {
	// DataDir holds the local database. Defaults to ./data.
	DataDir string `yaml:"data_dir"`

	// Remote is the authoritative backend.
	Remote Remote `yaml:"remote"`

	// SyncInterval is the hot-collection timer period.
	SyncInterval time.Duration `yaml:"sync_interval,omitempty"`

	// ProbeInterval is the connectivity probe period.
	ProbeInterval time.Duration `yaml:"probe_interval,omitempty"`

	// ListenAddr is the local HTTP status/trigger endpoint.
	ListenAddr string `yaml:"listen_addr,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:       "data",
		SyncInterval:  time.Minute,
		ProbeInterval: 15 * time.Second,
		ListenAddr:    "127.0.0.1:8123",
		LogLevel:      "info",
	}
}

// Load reads the YAML file at path, if it exists, over the defaults and
// then applies TILLSYNC_* environment overrides. A missing file is not
// an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to read config file", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to parse config file", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from TILLSYNC_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("TILLSYNC_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TILLSYNC_REMOTE_URL"); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv("TILLSYNC_API_KEY"); v != "" {
		c.Remote.APIKey = v
	}
	if v := os.Getenv("TILLSYNC_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("TILLSYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TILLSYNC_SYNC_INTERVAL"); v != "" {
		if d, err := parseDurationOrSeconds(v); err == nil {
			c.SyncInterval = d
		}
	}
	if v := os.Getenv("TILLSYNC_PROBE_INTERVAL"); v != "" {
		if d, err := parseDurationOrSeconds(v); err == nil {
			c.ProbeInterval = d
		}
	}
}

// parseDurationOrSeconds accepts "30s" style durations or bare seconds.
func parseDurationOrSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

func (c *Config) validate() error {
	if c.Remote.BaseURL == "" {
		return apperrors.New(apperrors.ErrValidation, "remote base_url is required")
	}
	if c.DataDir == "" {
		return apperrors.New(apperrors.ErrValidation, "data_dir is required")
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = time.Minute
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 15 * time.Second
	}
	return nil
}
