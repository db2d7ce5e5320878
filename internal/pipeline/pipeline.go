// Package pipeline turns stroke geometry into verified RCP packages: it
// reconstructs kinematics, runs the texture and quality gate loop, simulates
// IMU channels, encodes every channel and assembles the package.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roman-kulish/cloud-readers/internal/channel"
	"github.com/roman-kulish/cloud-readers/internal/kinematics"
	"github.com/roman-kulish/cloud-readers/internal/quality"
	"github.com/roman-kulish/cloud-readers/internal/rcp"
	"github.com/roman-kulish/cloud-readers/internal/simulation"
	"github.com/roman-kulish/cloud-readers/internal/stroke"
	"github.com/roman-kulish/cloud-readers/internal/texture"
)

// pcgStream is the second PCG word of every texture random source.
const pcgStream = 0x9e3779b97f4a7c15

// Job is one package to generate.
type Job struct {
	Name       string            // destination directory under the output directory
	Source     string            // artwork the stroke was extracted from
	Stroke     stroke.Stroke     // raw geometry
	Profile    string            // device profile, empty for the configured default
	DPI        float64           // 0 takes the profile's DPI
	Attributes map[string]string // copied into the manifest
	Seed       uint64
}

// Result describes a written package.
type Result struct {
	Package  *rcp.Package
	Verdict  quality.Verdict
	Attempts int
	Stats    kinematics.Stats
}

type options struct {
	logger    *slog.Logger
	claimer   Claimer
	simulator simulation.Simulator
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClaimer replaces the in-memory claim registry, for example with a
// catalog.SqliteCatalog shared between runs.
func WithClaimer(c Claimer) Option {
	return func(o *options) {
		o.claimer = c
	}
}

// WithSimulator replaces the engine built from Config.Simulation.
func WithSimulator(s simulation.Simulator) Option {
	return func(o *options) {
		o.simulator = s
	}
}

// Generator runs jobs against one configuration. It is safe for concurrent
// use; jobs share nothing but the configuration, the simulator and the
// claimer.
type Generator struct {
	cfg       Config
	gate      *quality.Gate
	simulator simulation.Simulator
	claimer   Claimer
	logger    *slog.Logger
}

func NewGenerator(cfg Config, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	gate, err := quality.NewGate(cfg.Quality)
	if err != nil {
		return nil, err
	}
	if o.simulator == nil {
		if o.simulator, err = simulation.New(cfg.Simulation, simulation.WithLogger(o.logger)); err != nil {
			return nil, fmt.Errorf("creating simulator: %w", err)
		}
	}
	if o.claimer == nil {
		o.claimer = NewMemoryClaims()
	}

	return &Generator{
		cfg:       cfg,
		gate:      gate,
		simulator: o.simulator,
		claimer:   o.claimer,
		logger:    o.logger,
	}, nil
}

// Generate runs one job to completion. Nothing is promoted under the
// destination unless every step succeeds and ctx is still live.
func (g *Generator) Generate(ctx context.Context, job Job) (res *Result, err error) {
	if err = validName(job.Name); err != nil {
		return nil, err
	}
	logger := g.logger.With(slog.String("job", job.Name))

	path, err := job.Stroke.Path(g.cfg.SimplifyEpsilon)
	if err != nil {
		return nil, err
	}
	profile, err := g.cfg.Simulation.Lookup(job.Profile)
	if err != nil {
		return nil, err
	}

	tr, verdict, attempts, err := g.shape(ctx, logger, path, job.Seed)
	if err != nil {
		return nil, err
	}

	touch := tr.TouchChannel()
	imu, err := g.simulator.Generate(ctx, touch, profile, g.cfg.Simulation.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("simulating IMU channels: %w", err)
	}

	encoded := make([]*channel.Encoded, 0, len(imu)+1)
	for _, c := range append([]*channel.Channel{touch}, imu...) {
		e, err := channel.Encode(c, channel.WithLevel(g.cfg.CompressionLevel))
		if err != nil {
			return nil, fmt.Errorf("encoding %s channel: %w", c.Name, err)
		}
		encoded = append(encoded, e)
	}

	attrs := make(map[string]string)
	maps.Copy(attrs, job.Attributes)
	maps.Copy(attrs, tr.Stats.Attributes())
	maps.Copy(attrs, simulation.Metadata(g.cfg.Simulation.Engine, profile, g.cfg.Simulation.SampleRate, imu))
	maps.Copy(attrs, verdictAttributes(verdict, attempts))

	dpi := job.DPI
	if dpi <= 0 {
		dpi = profile.DPI
	}
	m := rcp.NewManifest(job.Source, profile.Name, dpi, attrs)
	dir := filepath.Join(g.cfg.OutputDir, job.Name)

	if err = g.claimer.Claim(ctx, m.PackageID, dir, job.Source); err != nil {
		return nil, err
	}
	// claim bookkeeping must not be skipped because the job was cancelled
	bctx := context.WithoutCancel(ctx)

	pkg, err := rcp.Write(ctx, dir, m, encoded, rcp.WithLogger(logger))
	if err != nil {
		if fErr := g.claimer.Fail(bctx, m.PackageID, err); fErr != nil {
			logger.Error("failed to release claim", slog.String("package_id", m.PackageID), slog.Any("error", fErr))
		}
		return nil, err
	}
	if err = g.claimer.Complete(bctx, m.PackageID); err != nil {
		return nil, fmt.Errorf("recording package %s: %w", m.PackageID, err)
	}

	return &Result{
		Package:  pkg,
		Verdict:  verdict,
		Attempts: attempts,
		Stats:    tr.Stats,
	}, nil
}

// shape runs reconstruct, texture and gate up to MaxAttempts times and
// returns the first trajectory that passes.
func (g *Generator) shape(ctx context.Context, logger *slog.Logger, path *stroke.Path, seed uint64) (*kinematics.Trajectory, quality.Verdict, int, error) {
	var last quality.Verdict
	for n := 0; n < g.cfg.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return nil, last, n, err
		}

		tr, verdict, err := g.attempt(path, seed, n)
		if err != nil {
			return nil, verdict, n + 1, err
		}
		if verdict.Pass {
			logger.Debug("trajectory accepted",
				slog.Int("attempt", n+1),
				slog.Group("metrics",
					slog.Float64("snr", verdict.Metrics.SNR),
					slog.Float64("entropy", verdict.Metrics.Entropy)))
			return tr, verdict, n + 1, nil
		}

		last = verdict
		logger.Info("trajectory rejected",
			slog.Int("attempt", n+1),
			slog.String("reason", verdict.Reason.String()),
			slog.Group("metrics",
				slog.Float64("snr", verdict.Metrics.SNR),
				slog.Float64("entropy", verdict.Metrics.Entropy)))
	}
	return nil, last, g.cfg.MaxAttempts, &quality.RejectionError{Attempts: g.cfg.MaxAttempts, Last: last}
}

// attempt is attempt number n (from 0): seed offset by n strides and velocity
// bounds relaxed n times.
func (g *Generator) attempt(path *stroke.Path, seed uint64, n int) (*kinematics.Trajectory, quality.Verdict, error) {
	kcfg := g.cfg.Kinematics.Relaxed(g.cfg.VelocityRelax * float64(n))
	tr, err := kinematics.Reconstruct(path, kcfg)
	if err != nil {
		return nil, quality.Verdict{}, err
	}

	rng := rand.New(rand.NewPCG(seed+uint64(n)*g.cfg.SeedStride, pcgStream))
	res, err := texture.Extract(tr, g.cfg.Texture, rng)
	if err != nil {
		return nil, quality.Verdict{}, err
	}
	return tr, g.gate.Evaluate(res), nil
}

func verdictAttributes(v quality.Verdict, attempts int) map[string]string {
	f := func(x float64) string { return strconv.FormatFloat(x, 'g', 6, 64) }
	return map[string]string{
		"quality.snr":      f(v.Metrics.SNR),
		"quality.entropy":  f(v.Metrics.Entropy),
		"quality.attempts": strconv.Itoa(attempts),
	}
}

func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errors.New("pipeline: job needs a name")
	case strings.ContainsAny(name, `/\`), strings.HasPrefix(name, "."):
		return fmt.Errorf("pipeline: invalid job name %q", name)
	}
	return nil
}
