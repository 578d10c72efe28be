// Package config loads the store configuration from a YAML file with
// sensible defaults for running without one.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anyamene/pamojastore/internal/uuid"
)

// SyncConfig tunes batch application behavior.
type SyncConfig struct {
	// BatchSize caps how many change log entries are read per sync page.
	BatchSize int `yaml:"batch_size"`
	// StrictAtomicity applies a whole batch in one transaction and aborts
	// on the first failure instead of the default per-change transactions.
	StrictAtomicity bool `yaml:"strict_atomicity"`
}

// FileWorkerConfig tunes the background file-deletion worker.
type FileWorkerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Config is the full store configuration.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	DeviceID   string           `yaml:"device_id"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"`
	Sync       SyncConfig       `yaml:"sync"`
	FileWorker FileWorkerConfig `yaml:"file_worker"`
}

// Default returns the configuration used when no file is present. The
// device id is generated fresh; callers persisting identity should write
// the config back out.
func Default() *Config {
	return &Config{
		DataDir:    "./data",
		DeviceID:   uuid.New(),
		LogLevel:   "info",
		LogFormat:  "text",
		Sync:       SyncConfig{BatchSize: 1000},
		FileWorker: FileWorkerConfig{IntervalSeconds: 30},
	}
}

// Load reads the YAML config at path, layering it over defaults. A missing
// file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.DeviceID != "" && !uuid.IsValid(cfg.DeviceID) {
		return nil, fmt.Errorf("config device_id is not a valid UUID: %q", cfg.DeviceID)
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = 1000
	}
	if cfg.FileWorker.IntervalSeconds <= 0 {
		cfg.FileWorker.IntervalSeconds = 30
	}
	return cfg, nil
}

// FileWorkerInterval returns the worker poll interval as a duration.
func (c *Config) FileWorkerInterval() time.Duration {
	return time.Duration(c.FileWorker.IntervalSeconds) * time.Second
}
