package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/cloud-readers/internal/stroke"
)

// Outcome is the result of one job of a batch. Exactly one of Result and Err
// is set.
type Outcome struct {
	Job    Job
	Result *Result
	Err    error
}

// Batch runs jobs on at most workers goroutines. A failing job never stops
// the others; its error is captured in its Outcome. Outcomes are returned in
// job order. The returned error is only set when ctx ends before every job
// ran.
func (g *Generator) Batch(ctx context.Context, jobs []Job, workers int) ([]Outcome, error) {
	if workers < 1 {
		workers = 1
	}
	started := time.Now()
	outcomes := make([]Outcome, len(jobs))

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, job := range jobs {
		eg.Go(func() error {
			res, err := g.Generate(ctx, job)
			outcomes[i] = Outcome{Job: job, Result: res, Err: err}
			if err != nil {
				g.logger.Error("package failed", slog.String("job", job.Name), slog.Any("error", err))
			}
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	g.logger.Info("batch complete",
		slog.String("jobs", humanize.Comma(int64(len(jobs)))),
		slog.Int("failed", failed),
		slog.Int("workers", workers),
		slog.Duration("elapsed", time.Since(started)))

	return outcomes, ctx.Err()
}

// Jobs expands a stroke file into one job per stroke, named after the file
// and the stroke ID. Seeds are spread from seed by stroke position so every
// stroke draws its own texture.
func Jobs(file *stroke.File, filename, profile string, seed uint64) []Job {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	source := file.Source
	if source == "" {
		source = filepath.Base(filename)
	}

	jobs := make([]Job, 0, len(file.Strokes))
	for i, s := range file.Strokes {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("%03d", i)
		}
		jobs = append(jobs, Job{
			Name:       base + "-" + sanitize(id),
			Source:     source,
			Stroke:     s,
			Profile:    profile,
			DPI:        file.DPI,
			Attributes: file.Attributes,
			Seed:       seed + uint64(i),
		})
	}
	return jobs
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
