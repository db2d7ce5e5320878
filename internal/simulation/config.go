package simulation

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSampleRate = 200.0
	DefaultTimeout    = 30 * time.Second
	DefaultProfile    = "generic"

	// EngineInternal is the default engine
	EngineInternal Engine = "internal"
	EngineExternal Engine = "external"
)

var validEngines = map[Engine]struct{}{
	EngineInternal: {},
	EngineExternal: {},
}

type Engine string

func (e Engine) String() string {
	return string(e)
}

// Duration is a time.Duration written as "30s", "2m" in configuration files.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("simulation.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("simulation.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config selects and parameterizes the simulation engine.
type Config struct {
	Engine     Engine   `yaml:"engine" json:"engine"`         // internal (default) or external
	SampleRate float64  `yaml:"sampleRate" json:"sampleRate"` // IMU rate in Hz
	Timeout    Duration `yaml:"timeout" json:"timeout"`       // bound on one external run
	Command    string   `yaml:"command" json:"command"`       // external engine binary, looked up in PATH
	Args       []string `yaml:"args" json:"args"`
	Seed       uint64   `yaml:"seed" json:"seed"` // noise seed of the internal engine

	Profile  string             `yaml:"profile" json:"profile"`   // default device profile
	Profiles map[string]Profile `yaml:"profiles" json:"profiles"` // added to, or replacing, the built-ins
}

func DefaultConfig() Config {
	return Config{
		Engine:     EngineInternal,
		SampleRate: DefaultSampleRate,
		Timeout:    Duration(DefaultTimeout),
		Profile:    DefaultProfile,
	}
}

func (c *Config) Validate() error {
	if c.Engine != "" {
		if _, ok := validEngines[c.Engine]; !ok {
			return fmt.Errorf("simulation.Config: invalid engine: %s", c.Engine)
		}
	}
	if c.Engine == EngineExternal && c.Command == "" {
		return fmt.Errorf("simulation.Config: the external engine needs a command")
	}
	if !(c.SampleRate > 0) || c.SampleRate > 10_000 || math.IsInf(c.SampleRate, 0) {
		return fmt.Errorf("simulation.Config: sample rate must be between 0 and 10000 Hz: %g given", c.SampleRate)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("simulation.Config: timeout must not be negative: %s", c.Timeout)
	}
	if c.Engine == EngineExternal && c.Timeout == 0 {
		return fmt.Errorf("simulation.Config: the external engine needs a timeout")
	}
	for name, p := range c.Profiles {
		if p.Name == "" {
			p.Name = name
		}
		if p.Name != name {
			return fmt.Errorf("simulation.Config: profile %q is named %q", name, p.Name)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("simulation.Config: %w", err)
		}
	}
	if _, err := c.Lookup(c.Profile); err != nil {
		return err
	}
	return nil
}

// Lookup resolves a profile name, configured profiles first. An empty name
// resolves to the configured default profile.
func (c *Config) Lookup(name string) (Profile, error) {
	if name == "" {
		name = c.Profile
	}
	if name == "" {
		name = DefaultProfile
	}
	if p, ok := c.Profiles[name]; ok {
		p.Name = name
		return p, nil
	}
	if p, ok := builtinProfiles[name]; ok {
		return p, nil
	}
	return Profile{}, fmt.Errorf("simulation: unknown device profile %q", name)
}
