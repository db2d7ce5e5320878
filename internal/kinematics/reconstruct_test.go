package kinematics

import (
	"errors"
	"math"
	"testing"

	"github.com/roman-kulish/cloud-readers/internal/stroke"
)

func arcPath(t *testing.T, cx, cy, r, from, to float64, n int) *stroke.Path {
	t.Helper()
	points := make([]stroke.Point, n)
	for i := range points {
		a := from + (to-from)*float64(i)/float64(n-1)
		points[i] = stroke.Pt(cx+r*math.Cos(a), cy+r*math.Sin(a))
	}
	p, err := stroke.NewPath(points, nil)
	if err != nil {
		t.Fatalf("building arc: %v", err)
	}
	return p
}

func linePath(t *testing.T, n int) *stroke.Path {
	t.Helper()
	points := make([]stroke.Point, n)
	for i := range points {
		f := float64(i) / float64(n-1)
		points[i] = stroke.Pt(0.1+0.8*f, 0.2+0.6*f)
	}
	p, err := stroke.NewPath(points, nil)
	if err != nil {
		t.Fatalf("building line: %v", err)
	}
	return p
}

func checkInvariants(t *testing.T, tr *Trajectory) {
	t.Helper()
	for i, s := range tr.Samples {
		if i > 0 && s.T <= tr.Samples[i-1].T {
			t.Fatalf("sample %d: timestamp %d not after %d", i, s.T, tr.Samples[i-1].T)
		}
		if s.X < 0 || s.X > 1 || s.Y < 0 || s.Y > 1 {
			t.Errorf("sample %d: position (%g, %g) outside the unit square", i, s.X, s.Y)
		}
		if s.Pressure < 0 || s.Pressure > 1 || math.IsNaN(s.Pressure) {
			t.Errorf("sample %d: pressure %g outside [0,1]", i, s.Pressure)
		}
		if !(s.Size > 0) {
			t.Errorf("sample %d: size %g not positive", i, s.Size)
		}
	}
}

func TestReconstruct_CircularArcHasConstantVelocity(t *testing.T) {
	const r = 0.4
	want := DefaultGain * math.Cbrt(r) // k·C^(-1/3) with C = 1/r

	for _, rate := range []float64{0, 120} {
		cfg := DefaultConfig()
		cfg.SampleRate = rate

		tr, err := Reconstruct(arcPath(t, 0.5, 0.5, r, 0, math.Pi, 200), cfg)
		if err != nil {
			t.Fatalf("rate %g: Reconstruct: %v", rate, err)
		}
		checkInvariants(t, tr)

		for i, s := range tr.Samples {
			if math.Abs(s.Velocity-want) > 1e-9 {
				t.Fatalf("rate %g: sample %d velocity = %v, want %v", rate, i, s.Velocity, want)
			}
		}

		// chord length of the polyline over a constant velocity
		path := arcPath(t, 0.5, 0.5, r, 0, math.Pi, 200)
		wantDuration := path.Length() / want
		if got := tr.Duration.Seconds(); math.Abs(got-wantDuration) > 2e-6 {
			t.Errorf("rate %g: duration = %v, want %v", rate, got, wantDuration)
		}
	}
}

func TestReconstruct_StraightLineRunsAtMaxVelocity(t *testing.T) {
	cfg := DefaultConfig()
	tr, err := Reconstruct(linePath(t, 50), cfg)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	checkInvariants(t, tr)

	for i, s := range tr.Samples {
		if math.IsNaN(s.Velocity) || math.IsInf(s.Velocity, 0) {
			t.Fatalf("sample %d: velocity %v is not finite", i, s.Velocity)
		}
		if s.Velocity != cfg.MaxVelocity {
			t.Errorf("sample %d: velocity = %v, want %v", i, s.Velocity, cfg.MaxVelocity)
		}
	}
}

func TestReconstruct_QuarterCircleSampleCount(t *testing.T) {
	raw := make([]stroke.Point, 91)
	for i := range raw {
		a := math.Pi / 2 * float64(i) / 90
		raw[i] = stroke.Pt(100*math.Cos(a), 100*math.Sin(a))
	}
	path, err := stroke.Normalize(raw, nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Gain = 2
	cfg.SampleRate = 4

	tr, err := Reconstruct(path, cfg)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	checkInvariants(t, tr)

	if len(tr.Samples) != 4 {
		t.Fatalf("got %d samples, want 4", len(tr.Samples))
	}
	// radius 1 after normalization, so V = 2 and T = (π/2)/2
	if got := tr.Duration.Seconds(); math.Abs(got-math.Pi/4) > 1e-3 {
		t.Errorf("duration = %v, want about %v", got, math.Pi/4)
	}
	if tr.Samples[0].T != 0 {
		t.Errorf("first timestamp = %d, want 0", tr.Samples[0].T)
	}
}

func TestReconstruct_ShortPathYieldsPairAtMinVelocity(t *testing.T) {
	path, err := stroke.NewPath([]stroke.Point{stroke.Pt(0, 0), stroke.Pt(0.05, 0)}, nil)
	if err != nil {
		t.Fatalf("NewPath: %v", err)
	}
	cfg := DefaultConfig()

	tr, err := Reconstruct(path, cfg)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if len(tr.Samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(tr.Samples))
	}
	checkInvariants(t, tr)

	wantT := int64(math.Round(0.05 / cfg.MinVelocity * 1e6))
	if tr.Samples[1].T != wantT {
		t.Errorf("second timestamp = %d, want %d", tr.Samples[1].T, wantT)
	}
	for _, s := range tr.Samples {
		if s.Velocity != cfg.MinVelocity {
			t.Errorf("velocity = %v, want %v", s.Velocity, cfg.MinVelocity)
		}
	}
}

func TestReconstruct_ZeroLengthPathFails(t *testing.T) {
	path, err := stroke.NewPath([]stroke.Point{stroke.Pt(0.5, 0.5), stroke.Pt(0.5, 0.5)}, nil)
	if err != nil {
		t.Fatalf("NewPath: %v", err)
	}

	_, err = Reconstruct(path, DefaultConfig())
	var recErr *ReconstructionError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *ReconstructionError, got %v", err)
	}
}

func TestReconstruct_CuspIsClampedToMinVelocity(t *testing.T) {
	path, err := stroke.NewPath([]stroke.Point{
		stroke.Pt(0.1, 0.1), stroke.Pt(0.5, 0.1), stroke.Pt(0.1, 0.1), stroke.Pt(0.1, 0.5),
	}, nil)
	if err != nil {
		t.Fatalf("NewPath: %v", err)
	}
	cfg := DefaultConfig()
	cfg.SampleRate = 0

	tr, err := Reconstruct(path, cfg)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	checkInvariants(t, tr)
	if got := tr.Samples[1].Velocity; got != cfg.MinVelocity {
		t.Errorf("velocity at the cusp = %v, want %v", got, cfg.MinVelocity)
	}
}

func TestReconstruct_WidthDrivesSize(t *testing.T) {
	points := []stroke.Point{stroke.Pt(0, 0), stroke.Pt(0.2, 0.1), stroke.Pt(0.4, 0.4), stroke.Pt(0.5, 0.8)}
	widths := []float64{0.001, 0.01, 0.02, 0.01}
	path, err := stroke.NewPath(points, widths)
	if err != nil {
		t.Fatalf("NewPath: %v", err)
	}
	cfg := DefaultConfig()
	cfg.SampleRate = 0

	tr, err := Reconstruct(path, cfg)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	if got := tr.Samples[0].Size; got != cfg.MinSize {
		t.Errorf("size at the thin end = %v, want the floor %v", got, cfg.MinSize)
	}
	if got, want := tr.Samples[2].Size, 0.02*cfg.SizeScale; math.Abs(got-want) > 1e-12 {
		t.Errorf("size at the widest point = %v, want %v", got, want)
	}
}

func TestReconstruct_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinVelocity = cfg.MaxVelocity

	if _, err := Reconstruct(linePath(t, 3), cfg); err == nil {
		t.Fatal("expected a configuration error")
	}
}

func TestTrajectory_TouchChannel(t *testing.T) {
	tr, err := Reconstruct(arcPath(t, 0.5, 0.5, 0.3, 0, math.Pi/2, 20), DefaultConfig())
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	c := tr.TouchChannel()
	if err = c.Validate(); err != nil {
		t.Fatalf("touch channel is invalid: %v", err)
	}
	if c.Len() != len(tr.Samples) {
		t.Errorf("channel has %d samples, want %d", c.Len(), len(tr.Samples))
	}
	if got := c.Column("pressure")[3]; got != tr.Samples[3].Pressure {
		t.Errorf("pressure column = %v, want %v", got, tr.Samples[3].Pressure)
	}
}

func TestConfig_Relaxed(t *testing.T) {
	cfg := DefaultConfig()
	relaxed := cfg.Relaxed(0.5)

	if relaxed.MaxVelocity != cfg.MaxVelocity*1.5 {
		t.Errorf("max = %v, want %v", relaxed.MaxVelocity, cfg.MaxVelocity*1.5)
	}
	if relaxed.MinVelocity != cfg.MinVelocity/1.5 {
		t.Errorf("min = %v, want %v", relaxed.MinVelocity, cfg.MinVelocity/1.5)
	}
	if same := cfg.Relaxed(0); same != cfg {
		t.Errorf("Relaxed(0) changed the config: %+v", same)
	}
}
