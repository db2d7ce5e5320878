package quality

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/roman-kulish/cloud-readers/internal/texture"
)

func ramp(n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

func TestMeasure_ZeroResidual(t *testing.T) {
	res := &texture.Residual{
		Smooth: ramp(32, 0.2, 0.8),
		Values: make([]float64, 32),
	}

	m := Measure(res, DefaultBins)
	if !math.IsInf(m.SNR, 1) {
		t.Errorf("SNR = %v, want +Inf", m.SNR)
	}
	if m.Entropy != 0 {
		t.Errorf("entropy = %v, want 0", m.Entropy)
	}
	if m.ResidualVariance != 0 {
		t.Errorf("residual variance = %v, want 0", m.ResidualVariance)
	}
}

func TestMeasure_UniformResidualHasMaximalEntropy(t *testing.T) {
	// 16 bins, two values in each
	values := make([]float64, 0, 32)
	for i := 0; i < 16; i++ {
		v := (float64(i) + 0.5) / 16
		values = append(values, v, v)
	}
	values[0], values[len(values)-1] = 0, 1

	m := Measure(&texture.Residual{Smooth: ramp(32, 0, 1), Values: values}, 16)
	if math.Abs(m.Entropy-4) > 1e-9 {
		t.Errorf("entropy = %v, want 4 bits", m.Entropy)
	}
}

func TestGate_Evaluate(t *testing.T) {
	gate, err := NewGate(DefaultConfig())
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	// two-level residual: one bit of entropy, small next to the signal
	alternating := make([]float64, 64)
	for i := range alternating {
		alternating[i] = 0.01 * float64(i%2*2-1)
	}

	testCases := []struct {
		name       string
		res        *texture.Residual
		wantPass   bool
		wantReason Reason
	}{
		{
			name:       "flat residual",
			res:        &texture.Residual{Smooth: ramp(64, 0.2, 0.8), Values: make([]float64, 64)},
			wantReason: ReasonLowEntropy,
		},
		{
			name:       "residual louder than signal",
			res:        &texture.Residual{Smooth: ramp(64, 0.49, 0.51), Values: alternating},
			wantReason: ReasonLowSNR,
		},
		{
			name:       "uniform noise",
			res:        &texture.Residual{Smooth: ramp(64, 0, 1), Values: ramp(64, -0.01, 0.01)},
			wantReason: ReasonHighEntropy,
		},
		{
			name:     "plausible texture",
			res:      &texture.Residual{Smooth: ramp(64, 0.2, 0.8), Values: alternating},
			wantPass: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := gate.Evaluate(tc.res)
			if v.Pass != tc.wantPass || v.Reason != tc.wantReason {
				t.Errorf("verdict = %s, want pass=%v reason=%s", v, tc.wantPass, tc.wantReason)
			}
		})
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram([]float64{0, 0.1, 0.5, 0.99, 1}, 4)

	if diff := cmp.Diff([]uint32{2, 0, 1, 2}, h.Counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if h.Total() != 5 {
		t.Errorf("total = %d, want 5", h.Total())
	}

	flat := NewHistogram([]float64{0.3, 0.3, 0.3 + 1e-15}, 8)
	if got := flat.Counts()[0]; got != 3 {
		t.Errorf("flat signal: first bin has %d values, want 3", got)
	}
}

func TestRejectionError(t *testing.T) {
	var err error = fmt.Errorf("generating package: %w", &RejectionError{
		Attempts: 3,
		Last:     Verdict{Reason: ReasonLowEntropy},
	})

	var rejErr *RejectionError
	if !errors.As(err, &rejErr) {
		t.Fatalf("expected *RejectionError in %v", err)
	}
	if rejErr.Attempts != 3 || rejErr.Last.Reason != ReasonLowEntropy {
		t.Errorf("unexpected rejection %+v", rejErr)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntropy = cfg.MinEntropy - 0.1
	if _, err := NewGate(cfg); err == nil {
		t.Error("expected an error for an inverted entropy range")
	}

	cfg = DefaultConfig()
	cfg.Bins = 1
	if _, err := NewGate(cfg); err == nil {
		t.Error("expected an error for a single bin")
	}
}
