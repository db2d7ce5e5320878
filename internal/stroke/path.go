package stroke

import (
	"fmt"
	"math"
)

// InputError reports malformed or degenerate stroke geometry.
type InputError struct {
	msg string
}

func NewInputError(format string, args ...any) *InputError {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

func (e *InputError) Error() string {
	return "stroke: " + e.msg
}

// Path is an ordered polyline in normalized unit-square coordinates with a
// cumulative arc-length parameterization and an optional stroke width per
// point. A Path is immutable once created.
type Path struct {
	points []Point
	widths []float64 // nil when the geometry carried no widths
	arc    []float64 // arc[i] is the arc length from points[0] to points[i]
}

// NewPath validates points and widths and builds a Path. Consecutive duplicate
// points are dropped together with their widths. widths may be nil; otherwise
// it must have one entry per point.
func NewPath(points []Point, widths []float64) (*Path, error) {
	if len(points) == 0 {
		return nil, NewInputError("path has no points")
	}
	if widths != nil && len(widths) != len(points) {
		return nil, NewInputError("got %d widths for %d points", len(widths), len(points))
	}

	p := &Path{
		points: make([]Point, 0, len(points)),
		arc:    make([]float64, 0, len(points)),
	}
	if widths != nil {
		p.widths = make([]float64, 0, len(widths))
	}

	for i, pt := range points {
		if !pt.IsFinite() {
			return nil, NewInputError("point %d is not finite: %s", i, pt)
		}
		if pt.X < 0 || pt.X > 1 || pt.Y < 0 || pt.Y > 1 {
			return nil, NewInputError("point %d is outside the unit square: %s", i, pt)
		}
		if widths != nil {
			if w := widths[i]; math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
				return nil, NewInputError("width %d must be positive and finite, got %g", i, w)
			}
		}

		n := len(p.points)
		if n > 0 && p.points[n-1] == pt {
			continue
		}

		length := 0.0
		if n > 0 {
			length = p.arc[n-1] + pt.Sub(p.points[n-1]).Hypot()
		}

		p.points = append(p.points, pt)
		p.arc = append(p.arc, length)
		if widths != nil {
			p.widths = append(p.widths, widths[i])
		}
	}

	return p, nil
}

// Normalize maps raw coordinates (pixels, millimetres, ...) into the unit square
// with a uniform scale so the aspect ratio and therefore curvature ratios are
// preserved. Widths are scaled by the same factor.
func Normalize(raw []Point, widths []float64) (*Path, error) {
	if len(raw) == 0 {
		return nil, NewInputError("path has no points")
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, pt := range raw {
		if !pt.IsFinite() {
			return nil, NewInputError("point %d is not finite: %s", i, pt)
		}
		minX, maxX = min(minX, pt.X), max(maxX, pt.X)
		minY, maxY = min(minY, pt.Y), max(maxY, pt.Y)
	}

	span := max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}

	points := make([]Point, len(raw))
	for i, pt := range raw {
		// clamp guards against the last ulp drifting past 1
		points[i] = Point{X: (pt.X - minX) / span, Y: (pt.Y - minY) / span}.Clamp()
	}

	var scaled []float64
	if widths != nil {
		scaled = make([]float64, len(widths))
		for i, w := range widths {
			scaled[i] = w / span
		}
	}

	return NewPath(points, scaled)
}

// Len returns the number of points.
func (p *Path) Len() int {
	return len(p.points)
}

// Point returns the i-th point.
func (p *Path) Point(i int) Point {
	return p.points[i]
}

// Points returns a copy of the path's points.
func (p *Path) Points() []Point {
	return append([]Point(nil), p.points...)
}

// HasWidths reports whether the geometry carried stroke widths.
func (p *Path) HasWidths() bool {
	return p.widths != nil
}

// Width returns the stroke width at point i, or def when the path carries no
// widths.
func (p *Path) Width(i int, def float64) float64 {
	if p.widths == nil {
		return def
	}
	return p.widths[i]
}

// MaxWidth returns the widest stroke width, or def when the path carries no
// widths.
func (p *Path) MaxWidth(def float64) float64 {
	if p.widths == nil {
		return def
	}
	w := 0.0
	for _, v := range p.widths {
		w = max(w, v)
	}
	return w
}

// Length returns the total arc length.
func (p *Path) Length() float64 {
	return p.arc[len(p.arc)-1]
}

// SegmentLength returns the length of the segment between points i and i+1.
func (p *Path) SegmentLength(i int) float64 {
	return p.arc[i+1] - p.arc[i]
}
