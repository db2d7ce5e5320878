package kinematics

import (
	"fmt"
	"math"
)

// Relation selects how velocity drives pressure.
type Relation string

const (
	// RelationInverse presses lighter when the pen moves faster. This is the
	// default.
	RelationInverse Relation = "inverse"
	// RelationDirect presses harder when the pen moves faster.
	RelationDirect Relation = "direct"
)

var validRelations = map[Relation]struct{}{
	RelationInverse: {},
	RelationDirect:  {},
}

func (r Relation) String() string {
	return string(r)
}

// PressureConfig parameterizes LinearPressure.
type PressureConfig struct {
	Relation       Relation `yaml:"relation" json:"relation"`
	Base           float64  `yaml:"base" json:"base"`                     // pressure at mid velocity and mid width
	VelocityWeight float64  `yaml:"velocityWeight" json:"velocityWeight"` // swing attributed to velocity
	WidthWeight    float64  `yaml:"widthWeight" json:"widthWeight"`       // swing attributed to stroke width
	Floor          float64  `yaml:"floor" json:"floor"`                   // pressure never drops below this
}

func DefaultPressureConfig() PressureConfig {
	return PressureConfig{
		Relation:       RelationInverse,
		Base:           0.6,
		VelocityWeight: 0.5,
		WidthWeight:    0.3,
		Floor:          0.05,
	}
}

func (c *PressureConfig) Validate() error {
	if c.Relation != "" {
		if _, ok := validRelations[c.Relation]; !ok {
			return fmt.Errorf("invalid pressure relation: %s", c.Relation)
		}
	}
	weights := []struct {
		name  string
		value float64
	}{
		{"base", c.Base},
		{"velocity weight", c.VelocityWeight},
		{"width weight", c.WidthWeight},
	}
	for _, w := range weights {
		if w.value < 0 || w.value > 1 || math.IsNaN(w.value) {
			return fmt.Errorf("pressure %s must be between 0 and 1: %g given", w.name, w.value)
		}
	}
	if c.Floor < 0 || c.Floor >= 1 || math.IsNaN(c.Floor) {
		return fmt.Errorf("pressure floor must be in [0, 1): %g given", c.Floor)
	}
	return nil
}

// PressureModel maps normalized velocity and normalized stroke width, both in
// [0,1], to a pressure in [0,1].
type PressureModel interface {
	Pressure(velocity, width float64) float64
}

// LinearPressure is a weighted sum of the velocity and width terms around a
// base value:
//
//	p = Base + VelocityWeight·(v' - 0.5) + WidthWeight·(w - 0.5)
//
// where v' is 1-v for the inverse relation and v for the direct one. The
// result is clamped to [Floor, 1].
type LinearPressure struct {
	cfg PressureConfig
}

func NewLinearPressure(cfg PressureConfig) *LinearPressure {
	if cfg.Relation == "" {
		cfg.Relation = RelationInverse
	}
	return &LinearPressure{cfg: cfg}
}

func (p *LinearPressure) Pressure(velocity, width float64) float64 {
	v := clamp(velocity, 0, 1)
	if p.cfg.Relation == RelationInverse {
		v = 1 - v
	}
	w := clamp(width, 0, 1)

	pressure := p.cfg.Base + p.cfg.VelocityWeight*(v-0.5) + p.cfg.WidthWeight*(w-0.5)
	return clamp(pressure, p.cfg.Floor, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
