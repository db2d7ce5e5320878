package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/roman-kulish/cloud-readers/internal/channel"
)

// Internal synthesizes IMU channels from the touch trajectory alone. The
// device is assumed to be held still while the finger moves; acceleration is
// the second derivative of the contact point in metres plus gravity, and the
// gyroscope reads the heading rate of the contact point about z. Output is
// deterministic for a given seed and touch channel.
type Internal struct {
	seed uint64
}

func NewInternal(seed uint64) *Internal {
	return &Internal{seed: seed}
}

func (s *Internal) Generate(ctx context.Context, touch *channel.Channel, profile Profile, rate float64) ([]*channel.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if !(rate > 0) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("simulation: invalid sample rate %g", rate)
	}
	xs, ys := touch.Column("x"), touch.Column("y")
	if xs == nil || ys == nil {
		return nil, errors.New("simulation: touch channel has no x/y columns")
	}
	if touch.Len() < 2 {
		return nil, errors.New("simulation: touch channel needs at least two samples")
	}

	grid := timeGrid(touch.T, rate)
	n := len(grid)
	dt := float64(grid[1]-grid[0]) / 1e6

	x := make([]float64, n)
	y := make([]float64, n)
	for i, t := range grid {
		x[i] = interp(touch.T, xs, t) * profile.WidthMeters
		y[i] = interp(touch.T, ys, t) * profile.HeightMeters
	}

	vx, vy := gradient(x, dt), gradient(y, dt)
	ax, ay := gradient(vx, dt), gradient(vy, dt)

	heading := make([]float64, n)
	for i := range heading {
		heading[i] = math.Atan2(vy[i], vx[i])
	}
	unwrap(heading)
	gz := gradient(heading, dt)

	first, last := touch.Span()
	rng := rand.New(rand.NewPCG(s.seed, uint64(touch.Len())<<32^uint64(last-first)))
	noise := func() float64 { return rng.NormFloat64() * profile.NoiseStd }

	acc := channel.New(channel.Acc, channel.IMUSchema, n)
	gyro := channel.New(channel.Gyro, channel.IMUSchema, n)
	g := profile.Gravity
	for i, t := range grid {
		acc.Append(t, ax[i]+g[0]+noise(), ay[i]+g[1]+noise(), g[2]+noise())
		gyro.Append(t, noise(), noise(), gz[i]+noise())
	}

	out := []*channel.Channel{acc, gyro}
	if err := validateOutput(out); err != nil {
		return nil, err
	}
	return out, nil
}

// timeGrid returns timestamps every 1/rate seconds from the first touch
// timestamp, never past the last one. Spans shorter than one step get the
// two end points.
func timeGrid(ts []int64, rate float64) []int64 {
	first, last := ts[0], ts[len(ts)-1]
	step := max(int64(math.Round(1e6/rate)), 1)

	n := (last-first)/step + 1
	if n < 2 {
		return []int64{first, last}
	}
	grid := make([]int64, n)
	for i := range grid {
		grid[i] = first + int64(i)*step
	}
	return grid
}

// interp evaluates the piecewise linear function through (ts, vs) at t,
// holding the end values outside the range.
func interp(ts []int64, vs []float64, t int64) float64 {
	if t <= ts[0] {
		return vs[0]
	}
	if t >= ts[len(ts)-1] {
		return vs[len(vs)-1]
	}
	lo, hi := 0, len(ts)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if ts[mid] <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	f := float64(t-ts[lo]) / float64(ts[hi]-ts[lo])
	return vs[lo] + (vs[hi]-vs[lo])*f
}

// gradient is the second order central difference in the interior and the
// first order one-sided difference at the ends.
func gradient(v []float64, dt float64) []float64 {
	n := len(v)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = (v[1] - v[0]) / dt
	out[n-1] = (v[n-1] - v[n-2]) / dt
	for i := 1; i < n-1; i++ {
		out[i] = (v[i+1] - v[i-1]) / (2 * dt)
	}
	return out
}

// unwrap removes 2π jumps from a sequence of angles in place.
func unwrap(a []float64) {
	offset := 0.0
	for i := 1; i < len(a); i++ {
		d := a[i] + offset - a[i-1]
		switch {
		case d > math.Pi:
			offset -= 2 * math.Pi * math.Round(d/(2*math.Pi))
		case d < -math.Pi:
			offset += 2 * math.Pi * math.Round(-d/(2*math.Pi))
		}
		a[i] += offset
	}
}
