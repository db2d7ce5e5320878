package texture

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/roman-kulish/cloud-readers/internal/kinematics"
)

func wavyTrajectory() *kinematics.Trajectory {
	tr := &kinematics.Trajectory{}
	for i := 0; i < 64; i++ {
		f := float64(i) / 63
		tr.Samples = append(tr.Samples, kinematics.Sample{
			T:        int64(i) * 10_000,
			X:        0.1 + 0.8*f,
			Y:        0.5 + 0.2*math.Sin(6*f),
			Pressure: 0.5 + 0.3*math.Sin(20*f) + 0.05*math.Cos(97*f),
			Size:     0.5,
			Velocity: 1 + 0.5*math.Cos(15*f),
		})
	}
	return tr
}

func flatTrajectory() *kinematics.Trajectory {
	tr := &kinematics.Trajectory{}
	for i := 0; i < 32; i++ {
		tr.Samples = append(tr.Samples, kinematics.Sample{
			T:        int64(i) * 10_000,
			X:        0.1 + 0.02*float64(i),
			Y:        0.3,
			Pressure: 0.6,
			Size:     0.4,
			Velocity: 5,
		})
	}
	return tr
}

func TestExtract_Deterministic(t *testing.T) {
	run := func(seed uint64) (*kinematics.Trajectory, *Residual) {
		tr := wavyTrajectory()
		res, err := Extract(tr, DefaultConfig(), rand.New(rand.NewPCG(seed, 1)))
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		return tr, res
	}

	tr1, res1 := run(42)
	tr2, res2 := run(42)
	if diff := cmp.Diff(tr1, tr2); diff != "" {
		t.Errorf("same seed produced different trajectories (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(res1, res2); diff != "" {
		t.Errorf("same seed produced different residuals (-first +second):\n%s", diff)
	}

	_, res3 := run(43)
	if cmp.Equal(res1.Values, res3.Values) {
		t.Error("different seeds produced identical residuals")
	}
}

func TestExtract_JitterIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	original := wavyTrajectory()
	tr := wavyTrajectory()

	res, err := Extract(tr, cfg, rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for i, s := range tr.Samples {
		o := original.Samples[i]
		if d := math.Abs(s.Pressure - o.Pressure); d > cfg.PressureAmplitude+1e-12 {
			t.Errorf("sample %d: pressure moved by %v, more than %v", i, d, cfg.PressureAmplitude)
		}
		if d := math.Hypot(s.X-o.X, s.Y-o.Y); d > cfg.PositionAmplitude+1e-12 {
			t.Errorf("sample %d: position moved by %v, more than %v", i, d, cfg.PositionAmplitude)
		}
		if s.Pressure < 0 || s.Pressure > 1 || s.X < 0 || s.X > 1 || s.Y < 0 || s.Y > 1 {
			t.Errorf("sample %d out of range: %+v", i, s)
		}
		if s.Residual != res.Values[i] {
			t.Errorf("sample %d: residual %v not recorded, want %v", i, s.Residual, res.Values[i])
		}
		if s.T != o.T || s.Size != o.Size {
			t.Errorf("sample %d: timestamp or size changed", i)
		}
	}
}

func TestExtract_SmoothInputHasZeroResidual(t *testing.T) {
	original := flatTrajectory()
	tr := flatTrajectory()

	res, err := Extract(tr, DefaultConfig(), rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for i, v := range res.Values {
		if v != 0 {
			t.Fatalf("residual %d = %v, want 0", i, v)
		}
	}
	if diff := cmp.Diff(original, tr); diff != "" {
		t.Errorf("smooth input was modified (-want +got):\n%s", diff)
	}
}

func TestExtract_JitterFollowsResidualSize(t *testing.T) {
	testCases := []struct {
		name    string
		ripple  float64
		wantMax float64 // upper bound on max |residual|
		wantMin float64 // lower bound on max |residual|
	}{
		{"no ripple", 0, 0, 0},
		{"rounding noise", 1e-15, 0, 0},
		{"real ripple", 1e-3, 2e-3, 1e-4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tr := flatTrajectory()
			for i := range tr.Samples {
				if i%2 == 1 {
					tr.Samples[i].Pressure += tc.ripple
				}
			}
			original := flatTrajectory()
			copy(original.Samples, tr.Samples)

			res, err := Extract(tr, DefaultConfig(), rand.New(rand.NewPCG(1, 2)))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}

			peak := 0.0
			for _, v := range res.Values {
				peak = max(peak, math.Abs(v))
			}
			if peak > tc.wantMax || peak < tc.wantMin {
				t.Errorf("max |residual| = %v, want within [%v, %v]", peak, tc.wantMin, tc.wantMax)
			}
			for i, s := range tr.Samples {
				if d := math.Abs(s.Pressure - original.Samples[i].Pressure); d > tc.ripple {
					t.Errorf("sample %d: pressure jitter %v exceeds the ripple %v", i, d, tc.ripple)
				}
			}
		})
	}
}

func TestExtract_RequiresRandomSource(t *testing.T) {
	if _, err := Extract(wavyTrajectory(), DefaultConfig(), nil); err == nil {
		t.Fatal("expected an error without a random source")
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4, 10}, 3)
	want := []float64{1.5, 2, 3, 17.0 / 3, 7}

	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-12 })); diff != "" {
		t.Errorf("moving average mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_Validate(t *testing.T) {
	for _, w := range []int{0, 2, -3} {
		cfg := DefaultConfig()
		cfg.Window = w
		if err := cfg.Validate(); err == nil {
			t.Errorf("window %d: expected an error", w)
		}
	}
}
