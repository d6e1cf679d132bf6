// Package config loads estimator and logging settings from YAML.
package config

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/kexpfam/pkg/errors"
	"github.com/YuminosukeSato/kexpfam/pkg/log"
)

// Config holds all settings for building and running an estimator.
type Config struct {
	Estimator EstimatorConfig `yaml:"estimator"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EstimatorConfig configures a Lite estimator with a Gaussian kernel.
type EstimatorConfig struct {
	Lambda  float64 `yaml:"lambda"`
	Sigma   float64 `yaml:"sigma"`   // Gaussian bandwidth
	Workers int     `yaml:"workers"` // <= 0: one per CPU
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Estimator: EstimatorConfig{
			Lambda:  1e-3,
			Sigma:   2.0,
			Workers: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads YAML from r. See Parse.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	return Parse(data)
}

// LoadFile reads the YAML file at path and applies environment overrides.
// A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	return nil
}

// applyEnvOverrides reads KEXPFAM_LOG_LEVEL and KEXPFAM_WORKERS.
func (c *Config) applyEnvOverrides() error {
	if level := os.Getenv("KEXPFAM_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if workers := os.Getenv("KEXPFAM_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return errors.NewValidationError("KEXPFAM_WORKERS", "must be an integer", workers)
		}
		c.Estimator.Workers = n
	}
	return nil
}

// Validate checks parameter ranges.
func (c *Config) Validate() error {
	if c.Estimator.Lambda < 0 || math.IsNaN(c.Estimator.Lambda) || math.IsInf(c.Estimator.Lambda, 0) {
		return errors.NewValidationError("estimator.lambda", "must be non-negative and finite", c.Estimator.Lambda)
	}
	if !(c.Estimator.Sigma > 0) || math.IsInf(c.Estimator.Sigma, 0) {
		return errors.NewValidationError("estimator.sigma", "must be positive and finite", c.Estimator.Sigma)
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return errors.NewValidationError("logging.format", "must be json or console", c.Logging.Format)
	}
	return nil
}

// LogLevel returns the parsed logging level. Call after Validate.
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Logging.Level)
	if err != nil {
		return log.LevelInfo
	}
	return level
}

// NewLogger builds a logger writing to w according to the logging section.
func (c *Config) NewLogger(w io.Writer) log.Logger {
	if c.Logging.Format == "json" {
		return log.NewZerologLogger(w, c.LogLevel())
	}
	return log.NewConsoleLogger(w, c.LogLevel())
}
