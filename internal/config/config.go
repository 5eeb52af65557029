// Package config loads runtime settings from an optional YAML file
// with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds runtime settings. File values override defaults,
// STOCKTRAIL_* environment variables override the file.
type Config struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string `yaml:"database_path" env:"STOCKTRAIL_DATABASE_PATH"`
	// Workers is the dispatcher worker count.
	Workers int `yaml:"workers" env:"STOCKTRAIL_WORKERS"`
	// PollInterval is the idle dispatcher poll interval.
	PollInterval time.Duration `yaml:"poll_interval" env:"STOCKTRAIL_POLL_INTERVAL"`
	// MaxAttempts bounds automatic retries per job; 0 disables the bound.
	MaxAttempts int `yaml:"max_attempts" env:"STOCKTRAIL_MAX_ATTEMPTS"`
	// SyncBatchSize caps records applied per reconciliation batch.
	SyncBatchSize int `yaml:"sync_batch_size" env:"STOCKTRAIL_SYNC_BATCH_SIZE"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DatabasePath:  "stocktrail.db",
		Workers:       2,
		PollInterval:  time.Second,
		MaxAttempts:   3,
		SyncBatchSize: 500,
	}
}

// Load builds the effective config: defaults, then the YAML file at
// path (missing file is fine when path is empty), then environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("config: database_path is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("config: max_attempts must not be negative, got %d", c.MaxAttempts)
	}
	if c.SyncBatchSize < 1 {
		return fmt.Errorf("config: sync_batch_size must be at least 1, got %d", c.SyncBatchSize)
	}
	return nil
}
