package app

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/roman-kulish/cloud-readers/internal/channel"
	"github.com/roman-kulish/cloud-readers/internal/rcp"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.PackageDir); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("package '%s' does not exist: %w", config.PackageDir, err)
	}

	if config.Verify {
		if _, err := rcp.Verify(ctx, config.PackageDir); err != nil {
			return err
		}
		logger.Info("package verified", slog.String("path", config.PackageDir))
	}

	pkg, err := rcp.Open(config.PackageDir)
	if err != nil {
		return fmt.Errorf("opening package: %w", err)
	}
	touch, err := pkg.Channel(channel.Touch)
	if err != nil {
		return fmt.Errorf("reading touch channel: %w", err)
	}

	bounds := resolveBounds(touch.Column("pressure"), config.MinPressure, config.MaxPressure)
	first, last := touch.Span()
	info := Info{
		PackageID: pkg.Manifest.PackageID,
		Source:    pkg.Manifest.Source,
		Profile:   pkg.Manifest.DeviceProfile,
		DPI:       pkg.Manifest.DPI,
		CreatedAt: pkg.Manifest.CreatedAt,
		Samples:   touch.Len(),
		Duration:  time.Duration(last-first) * time.Microsecond,
		Bounds:    bounds,
	}

	renderer, err := NewStrokeRenderer(RenderConfig{
		Size:          config.Size,
		Theme:         config.Theme,
		Bounds:        bounds,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating stroke renderer: %w", err)
	}

	logger.Info("rendering stroke",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("size", config.Size),
		),
		slog.Group("pressure",
			slog.Float64("min", bounds.Min),
			slog.Float64("max", bounds.Max),
		))

	img, err := renderer.Render(touch, info)
	if err != nil {
		return fmt.Errorf("rendering stroke: %w", err)
	}

	return writeImage(config.OutputFile, config.Format, img)
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	switch format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		return png.Encode(out, img)
	}
}
