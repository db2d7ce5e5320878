package kinematics

import (
	"fmt"
	"math"
)

const (
	DefaultGain         = 2.0
	DefaultSampleRate   = 120.0
	DefaultMinVelocity  = 0.05
	DefaultMaxVelocity  = 5.0
	DefaultMinSize      = 0.05
	DefaultSizeScale    = 40.0
	DefaultStrokeWidth  = 0.01
	DefaultRelaxFactor  = 0.25
	maxSampleRate       = 10_000
	maxSamplesPerStroke = 1 << 22
)

// Config controls the geometry to kinematics inversion. Velocities are in
// normalized units (unit-square edges) per second.
type Config struct {
	Gain         float64        `yaml:"gain" json:"gain"`                 // k in V = k·C^(-1/3)
	SampleRate   float64        `yaml:"sampleRate" json:"sampleRate"`     // Hz, 0 keeps one sample per geometry point
	MinVelocity  float64        `yaml:"minVelocity" json:"minVelocity"`   // lower clamp, reached at cusps
	MaxVelocity  float64        `yaml:"maxVelocity" json:"maxVelocity"`   // upper clamp, reached on straight segments
	MinSize      float64        `yaml:"minSize" json:"minSize"`           // contact size floor
	SizeScale    float64        `yaml:"sizeScale" json:"sizeScale"`       // contact size per normalized stroke width
	DefaultWidth float64        `yaml:"defaultWidth" json:"defaultWidth"` // used when the geometry has no widths
	Pressure     PressureConfig `yaml:"pressure" json:"pressure"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Gain:         DefaultGain,
		SampleRate:   DefaultSampleRate,
		MinVelocity:  DefaultMinVelocity,
		MaxVelocity:  DefaultMaxVelocity,
		MinSize:      DefaultMinSize,
		SizeScale:    DefaultSizeScale,
		DefaultWidth: DefaultStrokeWidth,
		Pressure:     DefaultPressureConfig(),
	}
}

func (c *Config) Validate() error {
	if !positive(c.Gain) {
		return fmt.Errorf("kinematics.Config: gain must be positive: %g", c.Gain)
	}
	if c.SampleRate < 0 || c.SampleRate > maxSampleRate || math.IsNaN(c.SampleRate) {
		return fmt.Errorf("kinematics.Config: sample rate must be between 0 and %d Hz: %g given", maxSampleRate, c.SampleRate)
	}
	if !positive(c.MinVelocity) || !positive(c.MaxVelocity) {
		return fmt.Errorf("kinematics.Config: velocity bounds must be positive: [%g, %g]", c.MinVelocity, c.MaxVelocity)
	}
	if c.MaxVelocity <= c.MinVelocity {
		return fmt.Errorf("kinematics.Config: max velocity must be greater than min velocity: %g <= %g", c.MaxVelocity, c.MinVelocity)
	}
	if !positive(c.MinSize) {
		return fmt.Errorf("kinematics.Config: min size must be positive: %g", c.MinSize)
	}
	if c.SizeScale < 0 || math.IsNaN(c.SizeScale) || math.IsInf(c.SizeScale, 0) {
		return fmt.Errorf("kinematics.Config: size scale must not be negative: %g", c.SizeScale)
	}
	if !positive(c.DefaultWidth) {
		return fmt.Errorf("kinematics.Config: default width must be positive: %g", c.DefaultWidth)
	}
	if err := c.Pressure.Validate(); err != nil {
		return fmt.Errorf("kinematics.Config: %w", err)
	}
	return nil
}

// Relaxed returns a copy of the configuration with the velocity bounds widened
// by factor r: the maximum is raised to max·(1+r) and the minimum lowered to
// min/(1+r).
func (c Config) Relaxed(r float64) Config {
	if r <= 0 {
		return c
	}
	c.MaxVelocity *= 1 + r
	c.MinVelocity /= 1 + r
	return c
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
