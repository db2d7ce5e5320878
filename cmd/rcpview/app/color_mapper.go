package app

import (
	"image/color"
	"math"
)

// ColorTheme is a predefined pressure color scheme.
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Dark gray to white transition
	ThermalTheme   ColorTheme = "thermal"   // Red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256
)

// ColorMapper maps pressure to a pre-computed color ramp stretched over the
// pressure bounds.
type ColorMapper struct {
	colorMap         []color.Color
	theme            func(float64) color.Color
	size             int
	pressurePerIndex float64
	boundsMin        float64
}

func NewColorMapper(theme ColorTheme, bounds PressureBounds) *ColorMapper {
	cm := &ColorMapper{
		colorMap: make([]color.Color, DefaultColorMapSize),
		theme:    getColorTheme(theme),
		size:     DefaultColorMapSize,
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = cm.theme(float64(i) / float64(cm.size-1))
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds stretches the ramp over new bounds.
func (cm *ColorMapper) UpdateBounds(bounds PressureBounds) {
	cm.boundsMin = bounds.Min
	cm.pressurePerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)
}

// GetColor returns the color of the given pressure. Pressure outside the
// bounds takes the color of the nearest end.
func (cm *ColorMapper) GetColor(pressure float64) color.Color {
	if cm.pressurePerIndex <= 0 || math.IsNaN(pressure) {
		return cm.colorMap[cm.size-1]
	}

	index := int((pressure - cm.boundsMin) / cm.pressurePerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= cm.size {
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

// HSV represents a color in HSV (Hue, Saturation, Value) color space
type HSV struct {
	H float64 // Hue angle in degrees [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value/Brightness [0-1]
}

func (hsv HSV) RGB() color.Color {
	if hsv.S <= 0.0 {
		v := uint8(hsv.V * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(hsv.H, 360) / 60
	i := int(h)
	f := h - float64(i)

	v := uint8(hsv.V * 255)
	p := uint8((hsv.V * (1 - hsv.S)) * 255)
	q := uint8((hsv.V * (1 - (hsv.S * f))) * 255)
	t := uint8((hsv.V * (1 - (hsv.S * (1 - f)))) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}

// Strokes are drawn on black, so every ramp starts visibly above it.
func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case GrayscaleTheme:
		return func(p float64) color.Color {
			v := uint8((0.25 + 0.75*math.Pow(p, 0.7)) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case ThermalTheme:
		return func(p float64) color.Color {
			if p < 0.5 {
				return color.RGBA{R: 255, G: uint8(p * 2 * 255), A: 255}
			}
			return color.RGBA{R: 255, G: 255, B: uint8((p - 0.5) * 2 * 255), A: 255}
		}

	case MarineTheme:
		return func(p float64) color.Color {
			return HSV{
				H: 240 - (p * 60),
				S: 1.0 - (p * 0.8),
				V: 0.4 + (math.Pow(p, 0.6) * 0.6),
			}.RGB()
		}

	default:
		return func(p float64) color.Color {
			return HSV{
				H: 240 - (p * 240),
				S: 0.9 + (p * 0.1),
				V: 0.5 + 0.5*math.Pow(p, 0.7),
			}.RGB()
		}
	}
}
