package kinematics

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/roman-kulish/cloud-readers/internal/channel"
	"github.com/roman-kulish/cloud-readers/internal/stroke"
)

// ReconstructionError reports a path that cannot be turned into a trajectory:
// zero arc length, or non-finite curvature or velocity after clamping.
type ReconstructionError struct {
	msg string
}

func NewReconstructionError(format string, args ...any) *ReconstructionError {
	return &ReconstructionError{msg: fmt.Sprintf(format, args...)}
}

func (e *ReconstructionError) Error() string {
	return "kinematics: " + e.msg
}

// Sample is one reconstructed touch sample. Velocity, Curvature and Residual
// are kept in memory for the texture and quality stages and are not part of
// the touch channel.
type Sample struct {
	T         int64 // microseconds since the first sample
	X         float64
	Y         float64
	Pressure  float64
	Size      float64
	Velocity  float64
	Curvature float64
	Residual  float64
}

// Stats summarizes a reconstruction.
type Stats struct {
	Gain            float64
	MeanVelocity    float64
	MaxVelocity     float64
	MedianCurvature float64
	Points          int // geometry points after simplification
	Samples         int
}

// Attributes renders the statistics as manifest attributes.
func (s Stats) Attributes() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }
	return map[string]string{
		"kinematics.gain":             f(s.Gain),
		"kinematics.mean_velocity":    f(s.MeanVelocity),
		"kinematics.max_velocity":     f(s.MaxVelocity),
		"kinematics.median_curvature": f(s.MedianCurvature),
		"kinematics.point_count":      strconv.Itoa(s.Points),
	}
}

// Trajectory is a time-parameterized stroke.
type Trajectory struct {
	Samples  []Sample
	Duration time.Duration
	Stats    Stats
}

// TouchChannel converts the trajectory into the touch channel.
func (tr *Trajectory) TouchChannel() *channel.Channel {
	c := channel.New(channel.Touch, channel.TouchSchema, len(tr.Samples))
	for _, s := range tr.Samples {
		c.Append(s.T, s.X, s.Y, s.Pressure, s.Size)
	}
	return c
}

// Pressures returns the pressure curve.
func (tr *Trajectory) Pressures() []float64 {
	out := make([]float64, len(tr.Samples))
	for i, s := range tr.Samples {
		out[i] = s.Pressure
	}
	return out
}

// Velocities returns the velocity curve.
func (tr *Trajectory) Velocities() []float64 {
	out := make([]float64, len(tr.Samples))
	for i, s := range tr.Samples {
		out[i] = s.Velocity
	}
	return out
}

type options struct {
	pressure PressureModel
}

type Option func(*options)

// WithPressureModel replaces the LinearPressure built from Config.Pressure.
func WithPressureModel(m PressureModel) Option {
	return func(o *options) {
		o.pressure = m
	}
}

// knot is a geometry point with its integrated time.
type knot struct {
	t         float64 // seconds
	p         stroke.Point
	velocity  float64
	curvature float64
	width     float64
}

// Reconstruct recovers timing, pressure and contact size from a timeless path
// by inverting the Two-Thirds Power Law: tangential velocity is
// V = k·C^(-1/3), clamped to the configured bounds, and time is integrated
// along arc length as dt = ds/V.
func Reconstruct(path *stroke.Path, cfg Config, opts ...Option) (*Trajectory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pressure == nil {
		o.pressure = NewLinearPressure(cfg.Pressure)
	}

	if path == nil || path.Len() == 0 {
		return nil, NewReconstructionError("empty path")
	}
	if path.Length() == 0 {
		return nil, NewReconstructionError("path has zero arc length")
	}

	var (
		knots []knot
		err   error
	)
	if path.Len() < 3 {
		knots = pairKnots(path, cfg)
	} else {
		knots, err = integrate(path, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.SampleRate > 0 {
			knots = resample(knots, cfg.SampleRate)
		}
	}

	tr := &Trajectory{Samples: make([]Sample, len(knots))}

	maxWidth := path.MaxWidth(cfg.DefaultWidth)
	var prev int64
	for i, k := range knots {
		ts := int64(math.Round(k.t * 1e6))
		if i > 0 && ts <= prev {
			ts = prev + 1
		}
		prev = ts

		// without widths the width term stays neutral
		wn := 0.5
		if path.HasWidths() {
			wn = k.width / maxWidth
		}
		vn := (k.velocity - cfg.MinVelocity) / (cfg.MaxVelocity - cfg.MinVelocity)

		tr.Samples[i] = Sample{
			T:         ts,
			X:         clamp(k.p.X, 0, 1),
			Y:         clamp(k.p.Y, 0, 1),
			Pressure:  clamp(o.pressure.Pressure(vn, wn), 0, 1),
			Size:      math.Max(k.width*cfg.SizeScale, cfg.MinSize),
			Velocity:  k.velocity,
			Curvature: k.curvature,
		}
	}

	tr.Duration = time.Duration(tr.Samples[len(tr.Samples)-1].T-tr.Samples[0].T) * time.Microsecond
	tr.Stats = summarize(knots, cfg.Gain, path.Len())
	tr.Stats.Samples = len(tr.Samples)
	return tr, nil
}

// pairKnots handles paths too short to carry curvature: both ends move at the
// minimum velocity.
func pairKnots(path *stroke.Path, cfg Config) []knot {
	last := path.Len() - 1
	return []knot{
		{t: 0, p: path.Point(0), velocity: cfg.MinVelocity, width: path.Width(0, cfg.DefaultWidth)},
		{t: path.Length() / cfg.MinVelocity, p: path.Point(last), velocity: cfg.MinVelocity, width: path.Width(last, cfg.DefaultWidth)},
	}
}

func integrate(path *stroke.Path, cfg Config) ([]knot, error) {
	n := path.Len()
	curvature := Curvature(path)

	knots := make([]knot, n)
	for i := range knots {
		v := Velocity(curvature[i], cfg)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, NewReconstructionError("non-finite velocity %g at point %d (curvature %g)", v, i, curvature[i])
		}
		knots[i] = knot{
			p:         path.Point(i),
			velocity:  v,
			curvature: curvature[i],
			width:     path.Width(i, cfg.DefaultWidth),
		}
	}

	for i := 1; i < n; i++ {
		mean := (knots[i-1].velocity + knots[i].velocity) / 2
		dt := path.SegmentLength(i-1) / mean
		if math.IsNaN(dt) || math.IsInf(dt, 0) {
			return nil, NewReconstructionError("non-finite time step at segment %d", i-1)
		}
		knots[i].t = knots[i-1].t + dt
	}
	return knots, nil
}

// Curvature returns the unsigned three-point curvature at every point of the
// path: C = 2·sin(θ)/|p[i+1]-p[i-1]| where θ is the turning angle at p[i].
// This is the inverse radius of the circle through the three points, so it is
// exact for points on a circle. The end points copy their neighbour. A
// reversal (p[i+1] == p[i-1]) is a cusp with infinite curvature.
func Curvature(path *stroke.Path) []float64 {
	n := path.Len()
	c := make([]float64, n)
	if n < 3 {
		return c
	}

	for i := 1; i < n-1; i++ {
		a := path.Point(i).Sub(path.Point(i - 1))
		b := path.Point(i + 1).Sub(path.Point(i))
		chord := path.Point(i + 1).Sub(path.Point(i - 1)).Hypot()
		if chord == 0 {
			c[i] = math.Inf(1)
			continue
		}
		sin := math.Abs(a.Cross(b)) / (a.Hypot() * b.Hypot())
		c[i] = 2 * sin / chord
	}
	c[0], c[n-1] = c[1], c[n-2]
	return c
}

// Velocity applies V = k·C^(-1/3) clamped to the configured bounds. Zero
// curvature maps to the maximum, infinite curvature to the minimum.
func Velocity(curvature float64, cfg Config) float64 {
	if curvature <= 0 {
		return cfg.MaxVelocity
	}
	v := cfg.Gain / math.Cbrt(curvature)
	return clamp(v, cfg.MinVelocity, cfg.MaxVelocity)
}

// resample interpolates the knots linearly in time onto a uniform grid of
// max(2, round(T·rate)+1) instants spanning [0, T].
func resample(knots []knot, rate float64) []knot {
	total := knots[len(knots)-1].t
	n := int(math.Round(total*rate)) + 1
	n = min(max(n, 2), maxSamplesPerStroke)

	out := make([]knot, n)
	j := 0
	for i := range out {
		t := total * float64(i) / float64(n-1)
		if i == n-1 {
			out[i] = knots[len(knots)-1]
			continue
		}
		for j < len(knots)-2 && knots[j+1].t < t {
			j++
		}
		a, b := knots[j], knots[j+1]
		f := 0.0
		if span := b.t - a.t; span > 0 {
			f = clamp((t-a.t)/span, 0, 1)
		}
		out[i] = knot{
			t:         t,
			p:         a.p.Lerp(b.p, f),
			velocity:  a.velocity + (b.velocity-a.velocity)*f,
			curvature: lerpCurvature(a.curvature, b.curvature, f),
			width:     a.width + (b.width-a.width)*f,
		}
	}
	return out
}

func lerpCurvature(a, b, f float64) float64 {
	if math.IsInf(a, 1) || math.IsInf(b, 1) {
		if f < 0.5 {
			return a
		}
		return b
	}
	return a + (b-a)*f
}

func summarize(knots []knot, gain float64, points int) Stats {
	velocities := make([]float64, len(knots))
	curvatures := make([]float64, 0, len(knots))
	for i, k := range knots {
		velocities[i] = k.velocity
		if !math.IsInf(k.curvature, 0) {
			curvatures = append(curvatures, k.curvature)
		}
	}
	slices.Sort(curvatures)

	s := Stats{
		Gain:         gain,
		MeanVelocity: stat.Mean(velocities, nil),
		MaxVelocity:  slices.Max(velocities),
		Points:       points,
	}
	if len(curvatures) > 0 {
		s.MedianCurvature = stat.Quantile(0.5, stat.Empirical, curvatures, nil)
	}
	return s
}
