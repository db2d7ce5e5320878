package app

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/roman-kulish/cloud-readers/internal/channel"
)

const (
	defaultInfoBarHeight = 64

	// contact size is drawn at this fraction of the canvas edge per unit
	sizeToCanvas = 0.01
)

// RenderConfig holds the options of a stroke rendering.
type RenderConfig struct {
	Size          int // canvas edge in pixels
	Theme         ColorTheme
	Bounds        PressureBounds
	NoAnnotations bool
}

// StrokeRenderer draws a touch channel as a stroke whose width follows the
// contact size and whose color follows pressure.
type StrokeRenderer struct {
	config    RenderConfig
	colorMap  *ColorMapper
	annotator *Annotator
}

func NewStrokeRenderer(config RenderConfig) (*StrokeRenderer, error) {
	if config.Size <= 0 {
		config.Size = defaultCanvasSize
	}

	r := &StrokeRenderer{
		config:   config,
		colorMap: NewColorMapper(config.Theme, config.Bounds),
	}
	if !config.NoAnnotations {
		a, err := NewAnnotator()
		if err != nil {
			return nil, err
		}
		r.annotator = a
	}
	return r, nil
}

// Render draws touch and, unless annotations are disabled, an information
// bar underneath.
func (r *StrokeRenderer) Render(touch *channel.Channel, info Info) (*image.RGBA, error) {
	xs, ys := touch.Column("x"), touch.Column("y")
	pressure, size := touch.Column("pressure"), touch.Column("size")
	if xs == nil || ys == nil || pressure == nil || size == nil {
		return nil, errors.New("touch channel lacks x, y, pressure or size")
	}
	if touch.Len() == 0 {
		return nil, errors.New("touch channel is empty")
	}

	height := r.config.Size
	if r.annotator != nil {
		height += defaultInfoBarHeight
	}
	img := image.NewRGBA(image.Rect(0, 0, r.config.Size, height))
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)

	canvas := image.Rect(0, 0, r.config.Size, r.config.Size)
	scale := float64(r.config.Size - 1)

	stamp := func(x, y, p, s float64) {
		radius := math.Max(1, s*sizeToCanvas*float64(r.config.Size))
		fillDisc(img, canvas, x*scale, y*scale, radius, r.colorMap.GetColor(p))
	}

	stamp(xs[0], ys[0], pressure[0], size[0])
	for i := 1; i < touch.Len(); i++ {
		length := math.Hypot(xs[i]-xs[i-1], ys[i]-ys[i-1]) * scale
		steps := max(1, int(math.Ceil(length*2)))
		for s := 1; s <= steps; s++ {
			f := float64(s) / float64(steps)
			stamp(
				lerp(xs[i-1], xs[i], f),
				lerp(ys[i-1], ys[i], f),
				lerp(pressure[i-1], pressure[i], f),
				lerp(size[i-1], size[i], f))
		}
	}

	if r.annotator != nil {
		bar := image.Rect(0, r.config.Size, r.config.Size, height)
		if err := r.annotator.Annotate(img, bar, info); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func fillDisc(img *image.RGBA, clip image.Rectangle, cx, cy, radius float64, c color.Color) {
	area := image.Rect(
		int(math.Floor(cx-radius)), int(math.Floor(cy-radius)),
		int(math.Ceil(cx+radius))+1, int(math.Ceil(cy+radius))+1,
	).Intersect(clip)

	r2 := radius * radius
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= r2 {
				img.Set(x, y, c)
			}
		}
	}
}

func lerp(a, b, f float64) float64 {
	return a + (b-a)*f
}
