// Package config loads daemon settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/dcf77-receiver/internal/gpio"
)

// Config holds all daemon settings. Zero values are replaced by Default.
type Config struct {
	Chip      string        `yaml:"chip"`
	Pin       int           `yaml:"pin"`
	Invert    bool          `yaml:"invert"`
	Poll      time.Duration `yaml:"poll"`
	Broker    string        `yaml:"broker"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	HTTP      string        `yaml:"http"`
	Verbose   bool          `yaml:"verbose"`
	Simulate  bool          `yaml:"simulate"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Chip:      gpio.DefaultChip,
		Pin:       gpio.DefaultPin,
		Poll:      10 * time.Millisecond,
		Broker:    "tcp://192.168.1.200:1883",
		Heartbeat: 15 * time.Minute,
		HTTP:      ":80",
	}
}

// Load reads filename over the defaults. Keys missing from the file keep
// their default value.
func Load(filename string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config file %s: %w", filename, err)
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c Config) Validate() error {
	if c.Poll <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.Chip == "" && !c.Simulate {
		return errors.New("gpio chip must be set")
	}
	if c.Pin < 0 {
		return fmt.Errorf("invalid pin %d", c.Pin)
	}
	if c.Heartbeat < 0 {
		return errors.New("heartbeat must not be negative")
	}
	return nil
}
