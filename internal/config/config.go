// Package config holds runner configuration and its YAML loader.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RunnerConfig holds configuration for one coloop run.
type RunnerConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json, auto

	JournalPath string `yaml:"journal"`    // SQLite journal path; empty disables journaling
	AdminAddr   string `yaml:"admin_addr"` // Admin API listen address; empty disables the server

	PollInterval time.Duration `yaml:"poll_interval"`
	MaxSteps     int           `yaml:"max_steps"` // 0 means unlimited
	StopOnError  bool          `yaml:"stop_on_error"`

	Concurrency  int `yaml:"concurrency"`    // Parallel offload jobs; 0 means unlimited
	MaxCopyDepth int `yaml:"max_copy_depth"` // 0 uses the copier default
}

// DefaultRunnerConfig returns sensible defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		LogLevel:     "info",
		LogFormat:    "auto",
		PollInterval: 250 * time.Millisecond,
		Concurrency:  4,
	}
}

// ServerConfig holds configuration for the admin API server.
type ServerConfig struct {
	Addr    string // Listen address (default "127.0.0.1:8089")
	Version string
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:    "127.0.0.1:8089",
		Version: "0.1.0",
	}
}

// Load reads a YAML config file over the defaults. Unknown keys are an error.
func Load(path string) (RunnerConfig, error) {
	cfg := DefaultRunnerConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(bytes.NewReader(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode merges YAML from r into cfg and validates the result.
func Decode(r io.Reader, cfg *RunnerConfig) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return cfg.Validate()
}

// Validate checks field ranges.
func (c RunnerConfig) Validate() error {
	var errs []error
	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "auto":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want text, json or auto", c.LogFormat))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("max_steps must not be negative, got %d", c.MaxSteps))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency))
	}
	if c.MaxCopyDepth < 0 {
		errs = append(errs, fmt.Errorf("max_copy_depth must not be negative, got %d", c.MaxCopyDepth))
	}
	return errors.Join(errs...)
}
