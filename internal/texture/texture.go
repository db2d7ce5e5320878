// Package texture extracts the high-frequency residual of reconstructed
// pressure and velocity curves and feeds it back into the trajectory as
// bounded, seeded jitter.
package texture

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/roman-kulish/cloud-readers/internal/kinematics"
	"github.com/roman-kulish/cloud-readers/internal/stroke"
)

const (
	DefaultWindow            = 5
	DefaultPressureAmplitude = 0.05
	DefaultPositionAmplitude = 0.002

	// flatResidual is the residual peak, relative to the curve magnitude,
	// below which the curve counts as smooth.
	flatResidual = 1e-9
)

type Config struct {
	Window            int     `yaml:"window" json:"window"`                       // moving average width, odd
	PressureAmplitude float64 `yaml:"pressureAmplitude" json:"pressureAmplitude"` // fraction of the pressure range
	PositionAmplitude float64 `yaml:"positionAmplitude" json:"positionAmplitude"` // normalized units
}

func DefaultConfig() Config {
	return Config{
		Window:            DefaultWindow,
		PressureAmplitude: DefaultPressureAmplitude,
		PositionAmplitude: DefaultPositionAmplitude,
	}
}

func (c *Config) Validate() error {
	if c.Window < 1 || c.Window%2 == 0 {
		return fmt.Errorf("texture.Config: window must be a positive odd number: %d", c.Window)
	}
	if c.PressureAmplitude < 0 || c.PressureAmplitude > 1 || math.IsNaN(c.PressureAmplitude) {
		return fmt.Errorf("texture.Config: pressure amplitude must be between 0 and 1: %g", c.PressureAmplitude)
	}
	if c.PositionAmplitude < 0 || c.PositionAmplitude > 0.1 || math.IsNaN(c.PositionAmplitude) {
		return fmt.Errorf("texture.Config: position amplitude must be between 0 and 0.1: %g", c.PositionAmplitude)
	}
	return nil
}

// Residual is the standalone residual handed to the quality gate.
type Residual struct {
	Smooth   []float64 // smoothed pressure
	Values   []float64 // effective pressure residual, raw plus jitter
	Velocity []float64 // raw velocity residual
}

// Extract computes the pressure and velocity residuals of tr, adds them back
// as jitter and returns the pressure residual. tr is modified in place:
// pressure, position and Sample.Residual change. rng supplies the sign and
// phase of every jitter sample, so a fixed seed gives a fixed result.
func Extract(tr *kinematics.Trajectory, cfg Config, rng *rand.Rand) (*Residual, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("texture: a seeded random source is required")
	}
	n := len(tr.Samples)
	if n == 0 {
		return nil, errors.New("texture: empty trajectory")
	}

	pressure := tr.Pressures()
	velocity := tr.Velocities()

	smoothP := MovingAverage(pressure, cfg.Window)
	rawP := residualOf(pressure, smoothP)
	rawV := residualOf(velocity, MovingAverage(velocity, cfg.Window))

	jitterP := jitter(rawP, cfg.PressureAmplitude, rng)
	jitterV := jitter(rawV, cfg.PositionAmplitude, rng)

	// normals come from the undisturbed positions
	normals := make([]stroke.Point, n)
	for i := range tr.Samples {
		a, b := tr.Samples[max(i-1, 0)], tr.Samples[min(i+1, n-1)]
		normals[i] = stroke.Pt(b.X-a.X, b.Y-a.Y).Normal()
	}

	values := make([]float64, n)
	for i := range tr.Samples {
		s := &tr.Samples[i]
		values[i] = rawP[i] + jitterP[i]
		s.Residual = values[i]
		s.Pressure = clamp01(s.Pressure + jitterP[i])
		s.X = clamp01(s.X + normals[i].X*jitterV[i])
		s.Y = clamp01(s.Y + normals[i].Y*jitterV[i])
	}

	return &Residual{Smooth: smoothP, Values: values, Velocity: rawV}, nil
}

// residualOf returns values minus smooth. A residual whose peak is within
// rounding of the curve's own magnitude is flat and comes back as zeros.
func residualOf(values, smooth []float64) []float64 {
	out := make([]float64, len(values))
	floats.SubTo(out, values, smooth)

	scale := max(floats.Max(values), -floats.Min(values), 1)
	if peakAbs(out) <= flatResidual*scale {
		clear(out)
	}
	return out
}

func peakAbs(values []float64) float64 {
	peak := 0.0
	for _, v := range values {
		peak = max(peak, math.Abs(v))
	}
	return peak
}

// jitter scales the residual shape by amplitude with a random sign and phase
// per sample. The jitter never exceeds the residual's own peak, and a
// residual that is zero everywhere yields no jitter.
func jitter(residual []float64, amplitude float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(residual))
	peak := peakAbs(residual)
	gain := 0.0
	if peak > 0 {
		gain = min(amplitude, peak) / peak
	}

	for i, r := range residual {
		sign := 1.0
		if rng.IntN(2) == 0 {
			sign = -1
		}
		phase := rng.Float64()
		out[i] = gain * sign * phase * math.Abs(r)
	}
	return out
}

// MovingAverage returns the centred moving average of values over window
// samples. Windows are truncated at both ends. The mean is accumulated as
// deviations from the centre sample so a constant run averages to itself
// exactly.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	half := window / 2

	for i, v := range values {
		lo, hi := max(i-half, 0), min(i+half+1, len(values))
		d := 0.0
		for _, w := range values[lo:hi] {
			d += w - v
		}
		out[i] = v + d/float64(hi-lo)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
