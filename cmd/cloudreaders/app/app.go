package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/cloud-readers/internal/catalog"
	"github.com/roman-kulish/cloud-readers/internal/pipeline"
	"github.com/roman-kulish/cloud-readers/internal/stroke"
)

// Run generates one package per stroke of every input file.
func Run(ctx context.Context, config *Config, inputs []string, logger *slog.Logger) (err error) {
	jobs, err := loadJobs(inputs, config)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if config.Catalog.Path != "" {
		var cat *catalog.SqliteCatalog
		if cat, err = createCatalog(&config.Catalog); err != nil {
			return fmt.Errorf("failed to create catalog: %w", err)
		}
		defer func() {
			if cErr := cat.Close(); cErr != nil && err == nil {
				err = cErr
			}
		}()
		opts = append(opts, pipeline.WithClaimer(cat))
	}

	gen, err := pipeline.NewGenerator(config.Pipeline, opts...)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	logger.Info("generating packages",
		slog.Int("jobs", len(jobs)),
		slog.Int("workers", config.Settings.Workers),
		slog.String("output", config.Pipeline.OutputDir))

	outcomes, err := gen.Batch(ctx, jobs, config.Settings.Workers)
	if err != nil {
		return err
	}

	var failed int
	var written uint64
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			continue
		}
		for _, sum := range o.Result.Package.Checksums {
			if fi, sErr := os.Stat(filepath.Join(o.Result.Package.Dir, sum.Path)); sErr == nil {
				written += uint64(fi.Size())
			}
		}
	}

	logger.Info("finished",
		slog.Int("packages", len(outcomes)-failed),
		slog.Int("failed", failed),
		slog.String("written", humanize.Bytes(written)))

	if failed > 0 {
		return fmt.Errorf("%d of %d packages failed", failed, len(outcomes))
	}
	return nil
}

func loadJobs(inputs []string, config *Config) ([]pipeline.Job, error) {
	var jobs []pipeline.Job
	var errs []error
	for i, path := range inputs {
		file, err := stroke.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		// every file gets its own seed range
		seed := config.Settings.Seed + uint64(i)<<20
		jobs = append(jobs, pipeline.Jobs(file, path, config.Settings.Profile, seed)...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return jobs, nil
}

func createCatalog(config *CatalogConfig) (*catalog.SqliteCatalog, error) {
	dir := filepath.Dir(config.Path)
	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("catalog directory '%s' does not exist: %w", dir, err)
		}
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid catalog directory '%s'", dir)
	}

	return catalog.NewSqliteCatalog(config.Path), nil
}
