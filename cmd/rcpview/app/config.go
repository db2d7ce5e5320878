package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"

	defaultCanvasSize = 1024
)

type ImageFormat string

type Config struct {
	PackageDir    string
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	Size          int // canvas edge in pixels
	MinPressure   *float64
	MaxPressure   *float64
	Verify        bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Theme:  ClassicTheme,
		Size:   defaultCanvasSize,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return parseFlags(flag.CommandLine, os.Args[1:])
}

func parseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	var minPressure, maxPressure float64
	fs.StringVar(&c.PackageDir, "p", "", "Path to the package directory")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(ClassicTheme), "Pressure color theme. [classic, grayscale, thermal, marine]")
	fs.IntVar(&c.Size, "size", defaultCanvasSize, "Canvas edge in pixels")
	fs.Float64Var(&minPressure, "min-pressure", 0, "Define a manual minimum pressure (0-1)")
	fs.Float64Var(&maxPressure, "max-pressure", 0, "Define a manual maximum pressure (0-1)")
	fs.BoolVar(&c.Verify, "verify", false, "Verify the package before rendering")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable the information bar")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "min-pressure" {
			c.MinPressure = &minPressure
		}
		if f.Name == "max-pressure" {
			c.MaxPressure = &maxPressure
		}
	})

	var err error
	if c.PackageDir == "" {
		err = errors.New("package path is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validThemes[ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	} else if c.Size < 64 || c.Size > 16384 {
		err = fmt.Errorf("canvas size must be between 64 and 16384: %d", c.Size)
	} else if c.MinPressure != nil && c.MaxPressure != nil && *c.MinPressure >= *c.MaxPressure {
		err = fmt.Errorf("min pressure must be below max pressure: %g >= %g", *c.MinPressure, *c.MaxPressure)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
