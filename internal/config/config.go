package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" or "5m" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the application configuration
type Config struct {
	Database struct {
		Dialect string `yaml:"dialect"` // sqlite3 or postgres
		Source  string `yaml:"source"`  // file path or DSN
	} `yaml:"database"`
	Reconciler struct {
		Enabled  bool     `yaml:"enabled"`
		Interval Duration `yaml:"interval"`
	} `yaml:"reconciler"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Load reads the YAML configuration file at path. The DATABASE_URL
// environment variable, when set, overrides the configured source and
// switches the dialect to postgres.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.Dialect = "postgres"
		cfg.Database.Source = url
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = Duration(5 * time.Minute)
	}
	return cfg, nil
}

// Defaults returns a configuration suitable for local development.
func Defaults() *Config {
	cfg := &Config{}
	cfg.Database.Dialect = "sqlite3"
	cfg.Database.Source = "brasserie.db"
	cfg.Reconciler.Enabled = true
	cfg.Reconciler.Interval = Duration(5 * time.Minute)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090
	return cfg
}
