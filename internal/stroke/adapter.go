package stroke

// Chain orders an unordered cloud of skeleton points into a polyline by greedy
// nearest-neighbour walking. The walk starts at the point farthest from an
// arbitrary seed point, which on a thin open stroke is one of its extremities.
// Widths, when present, are permuted alongside the points.
//
// Chain is quadratic in the number of points; skeletons of single strokes are
// small enough for that to be irrelevant.
func Chain(points []Point, widths []float64) ([]Point, []float64) {
	n := len(points)
	if n < 3 {
		return append([]Point(nil), points...), append([]float64(nil), widths...)
	}

	start := farthestFrom(points, points[0])
	visited := make([]bool, n)
	order := make([]int, 0, n)

	cur := start
	for {
		visited[cur] = true
		order = append(order, cur)
		if len(order) == n {
			break
		}

		next, best := -1, 0.0
		for i, pt := range points {
			if visited[i] {
				continue
			}
			d := pt.Sub(points[cur]).Hypot()
			if next < 0 || d < best {
				next, best = i, d
			}
		}
		cur = next
	}

	chained := make([]Point, n)
	var chainedWidths []float64
	if widths != nil {
		chainedWidths = make([]float64, n)
	}
	for i, idx := range order {
		chained[i] = points[idx]
		if widths != nil {
			chainedWidths[i] = widths[idx]
		}
	}
	return chained, chainedWidths
}

func farthestFrom(points []Point, origin Point) int {
	idx, best := 0, -1.0
	for i, pt := range points {
		if d := pt.Sub(origin).Hypot(); d > best {
			idx, best = i, d
		}
	}
	return idx
}

// Simplify removes points that deviate less than epsilon from the polyline
// through their neighbours (Ramer-Douglas-Peucker). The first and last points
// are always kept. Widths follow their points.
func Simplify(points []Point, widths []float64, epsilon float64) ([]Point, []float64) {
	if len(points) < 3 || epsilon <= 0 {
		return append([]Point(nil), points...), append([]float64(nil), widths...)
	}

	keep := make([]bool, len(points))
	keep[0], keep[len(points)-1] = true, true
	simplifyRange(points, 0, len(points)-1, epsilon, keep)

	var out []Point
	var outWidths []float64
	for i, k := range keep {
		if !k {
			continue
		}
		out = append(out, points[i])
		if widths != nil {
			outWidths = append(outWidths, widths[i])
		}
	}
	return out, outWidths
}

func simplifyRange(points []Point, first, last int, epsilon float64, keep []bool) {
	if last-first < 2 {
		return
	}

	idx, dmax := -1, 0.0
	for i := first + 1; i < last; i++ {
		if d := segmentDistance(points[i], points[first], points[last]); d > dmax {
			idx, dmax = i, d
		}
	}
	if idx < 0 || dmax <= epsilon {
		return
	}

	keep[idx] = true
	simplifyRange(points, first, idx, epsilon, keep)
	simplifyRange(points, idx, last, epsilon, keep)
}

// segmentDistance returns the distance from p to the segment ab.
func segmentDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Sub(a).Hypot()
	}
	t := clamp01(p.Sub(a).Dot(ab) / l2)
	return p.Sub(a.Lerp(b, t)).Hypot()
}
