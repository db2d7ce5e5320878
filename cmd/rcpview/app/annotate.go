package app

import (
	"fmt"
	"image"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi     float64 = 72
	size    float64 = 12
	spacing float64 = 1.2
	margin          = 6
)

// Info is what the information bar shows about a package.
type Info struct {
	PackageID string
	Source    string
	Profile   string
	DPI       float64
	CreatedAt time.Time
	Samples   int
	Duration  time.Duration
	Bounds    PressureBounds
}

type Annotator struct {
	context *freetype.Context
}

func NewAnnotator() (*Annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)
	context.SetHinting(font.HintingFull)

	return &Annotator{context: context}, nil
}

// Annotate writes the information lines into bar.
func (a *Annotator) Annotate(img *image.RGBA, bar image.Rectangle, info Info) error {
	a.context.SetClip(bar)
	a.context.SetDst(img)

	lines := []string{
		fmt.Sprintf("Package %s, created %s", info.PackageID, humanize.Time(info.CreatedAt)),
		fmt.Sprintf("Source: %s, profile %s at %.0f dpi", info.Source, info.Profile, info.DPI),
		fmt.Sprintf("%s samples over %s, pressure %.2f to %.2f (mean %.2f)",
			humanize.Comma(int64(info.Samples)), info.Duration.Round(time.Millisecond),
			info.Bounds.Min, info.Bounds.Max, info.Bounds.Mean),
	}

	pt := freetype.Pt(bar.Min.X+margin, bar.Min.Y+margin+int(size))
	for _, s := range lines {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return fmt.Errorf("drawing info text: %w", err)
		}
		pt.Y += a.context.PointToFixed(size * spacing)
	}

	return nil
}
