package simulation

import (
	"fmt"
	"math"
	"slices"
)

// StandardGravity is the default gravity vector, device lying flat.
var StandardGravity = [3]float64{0, 0, -9.81}

// Profile describes the device a trajectory is replayed on.
type Profile struct {
	Name         string     `yaml:"name" json:"name"`
	WidthMeters  float64    `yaml:"widthMeters" json:"width_meters"`   // touch surface width
	HeightMeters float64    `yaml:"heightMeters" json:"height_meters"` // touch surface height
	DPI          float64    `yaml:"dpi" json:"dpi"`
	Gravity      [3]float64 `yaml:"gravity" json:"gravity"` // m/s², device frame
	NoiseStd     float64    `yaml:"noiseStd" json:"noise_std"`
}

func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("simulation.Profile: missing name")
	}
	if !(p.WidthMeters > 0) || !(p.HeightMeters > 0) || math.IsInf(p.WidthMeters, 0) || math.IsInf(p.HeightMeters, 0) {
		return fmt.Errorf("simulation.Profile %s: surface size must be positive: %gx%g m", p.Name, p.WidthMeters, p.HeightMeters)
	}
	if p.DPI < 0 || math.IsNaN(p.DPI) {
		return fmt.Errorf("simulation.Profile %s: invalid dpi %g", p.Name, p.DPI)
	}
	for _, g := range p.Gravity {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return fmt.Errorf("simulation.Profile %s: gravity must be finite: %v", p.Name, p.Gravity)
		}
	}
	if p.NoiseStd < 0 || math.IsNaN(p.NoiseStd) || math.IsInf(p.NoiseStd, 0) {
		return fmt.Errorf("simulation.Profile %s: noise std must not be negative: %g", p.Name, p.NoiseStd)
	}
	return nil
}

var builtinProfiles = map[string]Profile{
	"generic": {
		Name:         "generic",
		WidthMeters:  0.07,
		HeightMeters: 0.14,
		DPI:          400,
		Gravity:      StandardGravity,
		NoiseStd:     0.05,
	},
	"pixel_4": {
		Name:         "pixel_4",
		WidthMeters:  0.0649,
		HeightMeters: 0.1378,
		DPI:          444,
		Gravity:      StandardGravity,
		NoiseStd:     0.04,
	},
	"ipad_pro": {
		Name:         "ipad_pro",
		WidthMeters:  0.1781,
		HeightMeters: 0.2474,
		DPI:          264,
		Gravity:      StandardGravity,
		NoiseStd:     0.03,
	},
}

// BuiltinProfiles returns the names of the built-in profiles, sorted.
func BuiltinProfiles() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
