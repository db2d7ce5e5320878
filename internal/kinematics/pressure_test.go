package kinematics

import (
	"math"
	"testing"
)

func TestLinearPressure_Relation(t *testing.T) {
	testCases := []struct {
		name     string
		relation Relation
		slow     float64
		fast     float64
	}{
		{"inverse", RelationInverse, 0.85, 0.35},
		{"direct", RelationDirect, 0.35, 0.85},
		{"unset defaults to inverse", "", 0.85, 0.35},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPressureConfig()
			cfg.Relation = tc.relation
			m := NewLinearPressure(cfg)

			// base 0.6, velocity weight 0.5, neutral width
			if got := m.Pressure(0, 0.5); math.Abs(got-tc.slow) > 1e-12 {
				t.Errorf("slow pressure = %v, want %v", got, tc.slow)
			}
			if got := m.Pressure(1, 0.5); math.Abs(got-tc.fast) > 1e-12 {
				t.Errorf("fast pressure = %v, want %v", got, tc.fast)
			}
		})
	}
}

func TestLinearPressure_Bounds(t *testing.T) {
	m := NewLinearPressure(PressureConfig{
		Relation:       RelationInverse,
		Base:           0.5,
		VelocityWeight: 1,
		WidthWeight:    1,
		Floor:          0.1,
	})

	if got := m.Pressure(1, 0); got != 0.1 {
		t.Errorf("pressure = %v, want the floor", got)
	}
	if got := m.Pressure(0, 1); got != 1 {
		t.Errorf("pressure = %v, want 1", got)
	}
	if got := m.Pressure(-3, 7); got != 1 {
		t.Errorf("out of range inputs gave %v, want 1", got)
	}
}

func TestPressureConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *PressureConfig)
		wantErr bool
	}{
		{"defaults", func(c *PressureConfig) {}, false},
		{"unknown relation", func(c *PressureConfig) { c.Relation = "sideways" }, true},
		{"negative weight", func(c *PressureConfig) { c.VelocityWeight = -0.1 }, true},
		{"base above one", func(c *PressureConfig) { c.Base = 1.5 }, true},
		{"floor of one", func(c *PressureConfig) { c.Floor = 1 }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPressureConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

type recordingPressure struct {
	calls int
	value float64
}

func (p *recordingPressure) Pressure(velocity, width float64) float64 {
	p.calls++
	return p.value
}

func TestReconstruct_WithPressureModel(t *testing.T) {
	testCases := []struct {
		name  string
		value float64
		want  float64
	}{
		{"in range", 0.25, 0.25},
		{"clamped high", 3, 1},
		{"clamped low", -1, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := &recordingPressure{value: tc.value}
			tr, err := Reconstruct(linePath(t, 5), DefaultConfig(), WithPressureModel(m))
			if err != nil {
				t.Fatalf("Reconstruct: %v", err)
			}

			if m.calls == 0 {
				t.Fatal("pressure model was never consulted")
			}
			for i, s := range tr.Samples {
				if s.Pressure != tc.want {
					t.Fatalf("sample %d: pressure = %v, want %v", i, s.Pressure, tc.want)
				}
			}
		})
	}
}
