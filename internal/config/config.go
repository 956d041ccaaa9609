// Package config loads process settings from IMDEX_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the settings shared by every command. Flags override them.
type Config struct {
	DB          string        `envconfig:"IMDEX_DB" default:"imdex.db"`
	Capacity    int           `envconfig:"IMDEX_CAPACITY" default:"32"`
	Workers     int           `envconfig:"IMDEX_WORKERS" default:"8"`
	HashTimeout time.Duration `envconfig:"IMDEX_HASH_TIMEOUT" default:"30s"`
	LogLevel    string        `envconfig:"IMDEX_LOG_LEVEL" default:"info"`
	// Seed fixes the tree's random source; 0 means seed from the runtime.
	Seed      uint64 `envconfig:"IMDEX_SEED" default:"0"`
	Threshold int    `envconfig:"IMDEX_THRESHOLD" default:"10"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("IMDEX_DB must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("IMDEX_WORKERS must be positive, got %d", c.Workers)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("IMDEX_THRESHOLD must not be negative, got %d", c.Threshold)
	}
	return nil
}
