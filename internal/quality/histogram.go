package quality

import "math"

// flatRange is the amplitude span below which a signal counts as constant.
const flatRange = 1e-12

// Histogram counts residual amplitudes in equal-width bins spanning the
// observed range.
type Histogram struct {
	bins  []uint32
	total uint64
	lo    float64
	width float64
}

// NewHistogram bins values into n bins between their minimum and maximum.
// A signal whose range is below flatRange lands entirely in the first bin.
func NewHistogram(values []float64, n int) *Histogram {
	h := &Histogram{bins: make([]uint32, max(n, 1))}
	if len(values) == 0 {
		return h
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	h.lo = lo
	if hi-lo > flatRange {
		h.width = (hi - lo) / float64(len(h.bins))
	}

	for _, v := range values {
		h.bins[h.binIndex(v)]++
		h.total++
	}
	return h
}

func (h *Histogram) binIndex(v float64) int {
	if h.width == 0 {
		return 0
	}
	i := int(math.Floor((v - h.lo) / h.width))
	// the maximum sits on the upper edge of the last bin
	return min(max(i, 0), len(h.bins)-1)
}

// Counts returns a copy of the bin counts.
func (h *Histogram) Counts() []uint32 {
	return append([]uint32(nil), h.bins...)
}

// Total returns the number of values binned.
func (h *Histogram) Total() uint64 {
	return h.total
}

// Probabilities returns the normalized bin frequencies.
func (h *Histogram) Probabilities() []float64 {
	p := make([]float64, len(h.bins))
	if h.total == 0 {
		return p
	}
	for i, c := range h.bins {
		p[i] = float64(c) / float64(h.total)
	}
	return p
}
