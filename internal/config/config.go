// Package config loads the engine's startup configuration from YAML:
// scan directories, the default sample rate and block size, and the
// collector thread's drain interval.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine's top-level configuration file shape.
type Config struct {
	// ScanDirectories are searched for plugin bundles in addition to the
	// platform's built-in defaults (internal/scan.DefaultDirectories).
	ScanDirectories []string `yaml:"scan_directories"`

	SampleRate  float64 `yaml:"sample_rate"`
	BlockFrames int     `yaml:"block_frames"`

	// CollectorInterval is how often the collector thread drains retired
	// buffer pools and logs block-duration percentiles.
	CollectorInterval time.Duration `yaml:"collector_interval"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		SampleRate:        48000,
		BlockFrames:       512,
		CollectorInterval: 3 * time.Second,
	}
}

// Load reads and parses a YAML config file at path, filling in any field
// the file omits from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("config: sample_rate must be positive")
	}
	if cfg.BlockFrames <= 0 {
		return Config{}, fmt.Errorf("config: block_frames must be positive")
	}
	return cfg, nil
}
