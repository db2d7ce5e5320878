package stroke

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// File is the hand-off format produced by the extraction stage: one or more
// strokes lifted from a single artwork.
type File struct {
	Source     string            `json:"source"`
	DPI        float64           `json:"dpi"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Strokes    []Stroke          `json:"strokes"`
}

// Stroke is the raw geometry of a single stroke.
type Stroke struct {
	ID         string       `json:"id"`
	Points     [][2]float64 `json:"points"`
	Widths     []float64    `json:"widths,omitempty"`
	Ordered    bool         `json:"ordered"`    // false for raster-order skeleton pixels
	Normalized bool         `json:"normalized"` // true when points already lie in the unit square
}

// ReadFile decodes a stroke file from disk.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stroke file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode decodes a stroke file.
func Decode(r io.Reader) (*File, error) {
	var file File
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, NewInputError("decoding stroke file: %s", err)
	}
	if len(file.Strokes) == 0 {
		return nil, NewInputError("stroke file contains no strokes")
	}
	return &file, nil
}

// Path turns the raw stroke into a normalized Path: unordered points are
// chained first, raw coordinates are normalized into the unit square and the
// polyline is simplified with the given tolerance (in normalized units, 0
// disables simplification).
func (s *Stroke) Path(epsilon float64) (*Path, error) {
	if len(s.Points) == 0 {
		return nil, NewInputError("stroke %q has no points", s.ID)
	}
	if s.Widths != nil && len(s.Widths) != len(s.Points) {
		return nil, NewInputError("stroke %q has %d widths for %d points", s.ID, len(s.Widths), len(s.Points))
	}

	points := make([]Point, len(s.Points))
	for i, xy := range s.Points {
		points[i] = Pt(xy[0], xy[1])
	}
	widths := s.Widths

	if !s.Ordered {
		points, widths = Chain(points, widths)
	}

	var (
		path *Path
		err  error
	)
	if s.Normalized {
		path, err = NewPath(points, widths)
	} else {
		path, err = Normalize(points, widths)
	}
	if err != nil {
		return nil, fmt.Errorf("stroke %q: %w", s.ID, err)
	}
	if epsilon <= 0 {
		return path, nil
	}

	simplified, simplifiedWidths := Simplify(path.points, path.widths, epsilon)
	return NewPath(simplified, simplifiedWidths)
}
