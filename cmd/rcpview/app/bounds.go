package app

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	// Fewer samples than this and percentiles say nothing, the full range is
	// used instead.
	minimumSampleCount = 4

	minimumRange = 0.1
)

// PressureBounds is the pressure range the color ramp is stretched over.
type PressureBounds struct {
	Min  float64 // 5th percentile
	Max  float64 // 95th percentile
	Mean float64
}

func defaultPressureBounds() PressureBounds {
	return PressureBounds{Min: 0, Max: 1, Mean: 0.5}
}

// percentileBounds returns the 5th to 95th percentile of pressure, widened to
// at least minimumRange and padded by a 10% margin, within [0, 1].
func percentileBounds(pressure []float64) PressureBounds {
	if len(pressure) < minimumSampleCount {
		return defaultPressureBounds()
	}

	sorted := slices.Clone(pressure)
	slices.Sort(sorted)

	lo := stat.Quantile(0.05, stat.Empirical, sorted, nil)
	hi := stat.Quantile(0.95, stat.Empirical, sorted, nil)
	mean := stat.Mean(sorted, nil)

	if hi-lo < minimumRange {
		center := (hi + lo) / 2
		lo, hi = center-minimumRange/2, center+minimumRange/2
	}

	margin := (hi - lo) / 10
	lo, hi = math.Max(0, lo-margin), math.Min(1, hi+margin)

	return PressureBounds{Min: lo, Max: hi, Mean: mean}
}

// resolveBounds applies manual overrides to the computed bounds.
func resolveBounds(pressure []float64, minPressure, maxPressure *float64) PressureBounds {
	b := percentileBounds(pressure)
	if minPressure != nil {
		b.Min = *minPressure
	}
	if maxPressure != nil {
		b.Max = *maxPressure
	}
	if b.Max <= b.Min {
		b.Min, b.Max = 0, 1
	}
	return b
}
