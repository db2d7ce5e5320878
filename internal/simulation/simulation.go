// Package simulation turns a touch trajectory into inertial sensor channels.
//
// Engines are interchangeable behind Simulator: the deterministic Internal
// engine, an External process speaking JSON over stdin and stdout, and a
// Fallback that bounds one engine with a timeout and substitutes another when
// it fails.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/roman-kulish/cloud-readers/internal/channel"
)

// ErrTimeout is reported when an engine does not answer within its time
// budget. Fallback recovers from it.
var ErrTimeout = errors.New("simulation timed out")

// Simulator produces IMU channels (acc in m/s², gyro in rad/s) for a touch
// channel replayed on the given device profile at rate Hz.
type Simulator interface {
	Generate(ctx context.Context, touch *channel.Channel, profile Profile, rate float64) ([]*channel.Channel, error)
}

type options struct {
	logger *slog.Logger
}

type Option func(*options)

// WithLogger sets the logger for engines that log.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the engine selected by cfg. The external engine is always
// wrapped in a Fallback to the internal one.
func New(cfg Config, opts ...Option) (Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	internal := NewInternal(cfg.Seed)
	switch cfg.Engine {
	case EngineInternal, "":
		return internal, nil

	case EngineExternal:
		binPath, err := FindRuntime(cfg.Command)
		if err != nil {
			return nil, err
		}
		external := NewExternal(binPath, cfg.Args, opts...)
		return WithFallback(external, internal, time.Duration(cfg.Timeout), opts...), nil

	default:
		return nil, fmt.Errorf("simulation: unsupported engine %s", cfg.Engine)
	}
}

// Metadata summarizes generated channels as manifest attributes.
func Metadata(engine Engine, profile Profile, rate float64, channels []*channel.Channel) map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }
	attrs := map[string]string{
		"simulation.engine":         engine.String(),
		"simulation.sample_rate_hz": f(rate),
		"simulation.noise_std":      f(profile.NoiseStd),
	}
	for _, c := range channels {
		peak := 0.0
		for _, col := range c.Values {
			for _, v := range col {
				peak = math.Max(peak, math.Abs(v))
			}
		}
		attrs["simulation."+c.Name+"_peak"] = f(peak)
	}
	return attrs
}

// validateOutput checks what an engine returned: valid channels, IMU schema,
// no duplicates, at least one channel.
func validateOutput(channels []*channel.Channel) error {
	if len(channels) == 0 {
		return errors.New("simulation: engine returned no channels")
	}
	seen := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		if c == nil {
			return errors.New("simulation: engine returned a nil channel")
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("simulation: channel %q: %w", c.Name, err)
		}
		if c.Name == channel.Touch {
			return fmt.Errorf("simulation: engine returned a %q channel", channel.Touch)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("simulation: duplicate channel %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}
