// Command rcpverify reads packages back and reports every integrity problem.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/cloud-readers/internal/catalog"
	"github.com/roman-kulish/cloud-readers/internal/rcp"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	var catalogPath string
	flag.StringVar(&catalogPath, "catalog", "", "Path to the package catalog, cross-checks the recorded status")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-catalog catalog.db] package...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cat *catalog.SqliteCatalog
	if catalogPath != "" {
		if _, err := os.Stat(catalogPath); err != nil {
			logger.Error(fmt.Sprintf("catalog file '%s' is not readable: %s", catalogPath, err))
			os.Exit(1)
		}
		cat = catalog.NewSqliteCatalog(catalogPath)
		defer cat.Close()
	}

	failed := 0
	for _, dir := range flag.Args() {
		if !verify(ctx, dir, cat, logger) {
			failed++
		}
	}

	if failed > 0 {
		logger.Error(fmt.Sprintf("%d of %d packages failed verification", failed, flag.NArg()))

		cancel()
		os.Exit(1)
	}
}

func verify(ctx context.Context, dir string, cat *catalog.SqliteCatalog, logger *slog.Logger) bool {
	logger = logger.With(slog.String("package", dir))

	rep, err := rcp.Verify(ctx, dir)
	if err != nil {
		var integrityErr *rcp.IntegrityError
		if !errors.As(err, &integrityErr) {
			logger.Error("verification failed", slog.Any("error", err))
			return false
		}
		for _, problem := range integrityErr.Problems {
			logger.Error("integrity problem", slog.Any("problem", problem))
		}
		return false
	}

	var samples int64
	for _, n := range rep.Samples {
		samples += int64(n)
	}
	logger.Info("package verified",
		slog.String("package_id", rep.Manifest.PackageID),
		slog.Int("files", len(rep.Checksums)),
		slog.String("samples", humanize.Comma(samples)),
		slog.Float64("duration_seconds", rep.DurationSeconds))

	if cat == nil {
		return true
	}

	record, err := cat.Package(ctx, rep.Manifest.PackageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		logger.Warn("package is not in the catalog")
	case err != nil:
		logger.Error("catalog lookup failed", slog.Any("error", err))
		return false
	case record.Status != catalog.StatusComplete:
		logger.Error("catalog disagrees", slog.String("status", string(record.Status)))
		return false
	}
	return true
}
