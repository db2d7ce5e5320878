// Package quality decides whether a synthesized residual looks biological
// enough to ship.
package quality

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/roman-kulish/cloud-readers/internal/texture"
)

const (
	DefaultMinSNR     = 2.0
	DefaultMinEntropy = 0.5
	DefaultMaxEntropy = 3.9
	DefaultBins       = 16
)

// Reason names the check a residual failed.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonLowSNR      Reason = "low_snr"
	ReasonLowEntropy  Reason = "low_entropy"
	ReasonHighEntropy Reason = "high_entropy"
)

func (r Reason) String() string {
	if r == ReasonNone {
		return "none"
	}
	return string(r)
}

type Config struct {
	MinSNR     float64 `yaml:"minSNR" json:"minSNR"`
	MinEntropy float64 `yaml:"minEntropy" json:"minEntropy"` // bits
	MaxEntropy float64 `yaml:"maxEntropy" json:"maxEntropy"` // bits
	Bins       int     `yaml:"bins" json:"bins"`             // amplitude histogram bins
}

func DefaultConfig() Config {
	return Config{
		MinSNR:     DefaultMinSNR,
		MinEntropy: DefaultMinEntropy,
		MaxEntropy: DefaultMaxEntropy,
		Bins:       DefaultBins,
	}
}

func (c *Config) Validate() error {
	if c.MinSNR < 0 || math.IsNaN(c.MinSNR) {
		return fmt.Errorf("quality.Config: min SNR must not be negative: %g", c.MinSNR)
	}
	if c.Bins < 2 || c.Bins > 1<<16 {
		return fmt.Errorf("quality.Config: bins must be between 2 and %d: %d", 1<<16, c.Bins)
	}
	if c.MinEntropy < 0 || math.IsNaN(c.MinEntropy) {
		return fmt.Errorf("quality.Config: min entropy must not be negative: %g", c.MinEntropy)
	}
	if c.MaxEntropy < c.MinEntropy || math.IsNaN(c.MaxEntropy) {
		return fmt.Errorf("quality.Config: max entropy must not be below min entropy: %g < %g", c.MaxEntropy, c.MinEntropy)
	}
	return nil
}

// Metrics are the measurements a verdict is based on.
type Metrics struct {
	SNR              float64 `json:"snr"`
	Entropy          float64 `json:"entropy"` // bits
	SignalVariance   float64 `json:"signal_variance"`
	ResidualVariance float64 `json:"residual_variance"`
}

// Verdict is the outcome of one evaluation.
type Verdict struct {
	Pass    bool
	Reason  Reason
	Metrics Metrics
}

func (v Verdict) String() string {
	state := "pass"
	if !v.Pass {
		state = "reject (" + v.Reason.String() + ")"
	}
	return fmt.Sprintf("%s: snr=%.3g entropy=%.3g bits", state, v.Metrics.SNR, v.Metrics.Entropy)
}

// RejectionError is returned once the regeneration budget is spent and the
// last attempt still failed the gate.
type RejectionError struct {
	Attempts int
	Last     Verdict
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("quality: rejected after %d attempts: %s", e.Attempts, e.Last)
}

// Gate evaluates residuals against fixed thresholds. It holds no state
// between evaluations.
type Gate struct {
	cfg Config
}

func NewGate(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg}, nil
}

// Evaluate measures the residual and rejects it when the SNR is below the
// minimum or the entropy falls outside [MinEntropy, MaxEntropy].
func (g *Gate) Evaluate(res *texture.Residual) Verdict {
	m := Measure(res, g.cfg.Bins)
	v := Verdict{Pass: true, Metrics: m}

	switch {
	case m.SNR < g.cfg.MinSNR:
		v.Pass, v.Reason = false, ReasonLowSNR
	case m.Entropy < g.cfg.MinEntropy:
		v.Pass, v.Reason = false, ReasonLowEntropy
	case m.Entropy > g.cfg.MaxEntropy:
		v.Pass, v.Reason = false, ReasonHighEntropy
	}
	return v
}

// Measure computes SNR = var(smooth)/var(residual) and the Shannon entropy of
// the residual amplitude histogram. A residual with no variance has an
// infinite SNR and zero entropy.
func Measure(res *texture.Residual, bins int) Metrics {
	m := Metrics{
		SignalVariance:   variance(res.Smooth),
		ResidualVariance: variance(res.Values),
	}

	switch {
	case m.ResidualVariance > 0:
		m.SNR = m.SignalVariance / m.ResidualVariance
	default:
		m.SNR = math.Inf(1)
	}

	h := NewHistogram(res.Values, bins)
	m.Entropy = stat.Entropy(h.Probabilities()) / math.Ln2
	return m
}

func variance(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.Variance(x, nil)
}
