package stroke

import (
	"fmt"
	"math"
)

// Point is a position in the normalized unit square. It doubles as a 2D vector
// for the handful of operations the geometry code needs.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt returns the point (x, y).
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Sub returns p-o.
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// Add returns p+o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// Mul scales p by s.
func (p Point) Mul(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Dot returns the dot product of p and o.
func (p Point) Dot(o Point) float64 {
	return p.X*o.X + p.Y*o.Y
}

// Cross returns the z component of the cross product of p and o.
func (p Point) Cross(o Point) float64 {
	return p.X*o.Y - p.Y*o.X
}

// Hypot returns the magnitude of p.
func (p Point) Hypot() float64 {
	return math.Hypot(p.X, p.Y)
}

// Lerp linearly interpolates between p and o.
func (p Point) Lerp(o Point, t float64) Point {
	return p.Add(o.Sub(p).Mul(t))
}

// Normal returns the unit left-hand normal of p, or the zero vector when p has
// no length.
func (p Point) Normal() Point {
	h := p.Hypot()
	if h == 0 {
		return Point{}
	}
	return Point{X: -p.Y / h, Y: p.X / h}
}

// IsFinite reports whether both coordinates are finite.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Clamp returns p with both coordinates clamped into the unit square.
func (p Point) Clamp() Point {
	return Point{X: clamp01(p.X), Y: clamp01(p.Y)}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
