package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/cloud-readers/internal/pipeline"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings        `yaml:"settings"`
	Catalog  CatalogConfig   `yaml:"catalog"`
	Pipeline pipeline.Config `yaml:"pipeline"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
	Workers  int    `yaml:"workers"` // 0 uses one worker per CPU
	Seed     uint64 `yaml:"seed"`    // base texture seed
	Profile  string `yaml:"profile"` // device profile, empty for the simulation default

	level slog.Level
}

// Level returns the parsed log level.
func (s *Settings) Level() slog.Level {
	return s.level
}

// CatalogConfig represents package catalog settings. Without a path claims
// live in memory for the duration of the run.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Pipeline: pipeline.DefaultConfig(),
	}
}

// LoadConfig reads a YAML configuration file over the defaults. Unknown keys
// are rejected.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return DecodeConfig(f)
}

func DecodeConfig(r io.Reader) (*Config, error) {
	c := NewConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if err := c.Settings.level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return fmt.Errorf("app.Config: invalid log level %q", c.Settings.LogLevel)
	}
	if c.Settings.Workers < 0 {
		return fmt.Errorf("app.Config: workers must not be negative: %d", c.Settings.Workers)
	}
	if c.Settings.Workers == 0 {
		c.Settings.Workers = runtime.NumCPU()
	}
	if c.Settings.Profile != "" {
		if _, err := c.Pipeline.Simulation.Lookup(c.Settings.Profile); err != nil {
			return fmt.Errorf("app.Config: %w", err)
		}
	}
	return c.Pipeline.Validate()
}
