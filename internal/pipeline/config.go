package pipeline

import (
	"fmt"
	"math"

	"github.com/roman-kulish/cloud-readers/internal/channel"
	"github.com/roman-kulish/cloud-readers/internal/kinematics"
	"github.com/roman-kulish/cloud-readers/internal/quality"
	"github.com/roman-kulish/cloud-readers/internal/simulation"
	"github.com/roman-kulish/cloud-readers/internal/texture"
)

const (
	DefaultMaxAttempts     = 3
	DefaultSeedStride      = 7919
	DefaultSimplifyEpsilon = 0.0005
	maxAttempts            = 100
)

// Config is the immutable configuration shared by every job of a generator.
type Config struct {
	OutputDir        string  `yaml:"outputDir"`
	MaxAttempts      int     `yaml:"maxAttempts"`      // gate attempts per package
	SeedStride       uint64  `yaml:"seedStride"`       // seed offset between attempts
	VelocityRelax    float64 `yaml:"velocityRelax"`    // bound relaxation per attempt
	SimplifyEpsilon  float64 `yaml:"simplifyEpsilon"`  // normalized units, 0 disables
	CompressionLevel int     `yaml:"compressionLevel"` // zstd level of channel payloads

	Kinematics kinematics.Config `yaml:"kinematics"`
	Texture    texture.Config    `yaml:"texture"`
	Quality    quality.Config    `yaml:"quality"`
	Simulation simulation.Config `yaml:"simulation"`
}

func DefaultConfig() Config {
	return Config{
		OutputDir:        "packages",
		MaxAttempts:      DefaultMaxAttempts,
		SeedStride:       DefaultSeedStride,
		VelocityRelax:    kinematics.DefaultRelaxFactor,
		SimplifyEpsilon:  DefaultSimplifyEpsilon,
		CompressionLevel: channel.DefaultLevel,
		Kinematics:       kinematics.DefaultConfig(),
		Texture:          texture.DefaultConfig(),
		Quality:          quality.DefaultConfig(),
		Simulation:       simulation.DefaultConfig(),
	}
}

func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("pipeline.Config: missing output directory")
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > maxAttempts {
		return fmt.Errorf("pipeline.Config: max attempts must be between 1 and %d: %d", maxAttempts, c.MaxAttempts)
	}
	if c.VelocityRelax < 0 || math.IsNaN(c.VelocityRelax) || math.IsInf(c.VelocityRelax, 0) {
		return fmt.Errorf("pipeline.Config: velocity relax must not be negative: %g", c.VelocityRelax)
	}
	if c.SimplifyEpsilon < 0 || math.IsNaN(c.SimplifyEpsilon) || c.SimplifyEpsilon > 0.1 {
		return fmt.Errorf("pipeline.Config: simplify epsilon must be between 0 and 0.1: %g", c.SimplifyEpsilon)
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
		return fmt.Errorf("pipeline.Config: compression level must be between 1 and 22: %d", c.CompressionLevel)
	}
	if err := c.Kinematics.Validate(); err != nil {
		return fmt.Errorf("pipeline.Config: %w", err)
	}
	if err := c.Texture.Validate(); err != nil {
		return fmt.Errorf("pipeline.Config: %w", err)
	}
	if err := c.Quality.Validate(); err != nil {
		return fmt.Errorf("pipeline.Config: %w", err)
	}
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("pipeline.Config: %w", err)
	}
	return nil
}
