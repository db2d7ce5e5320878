package rcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/cloud-readers/internal/channel"
)

// ErrExists is returned when the destination directory is already taken.
var ErrExists = errors.New("rcp: destination already exists")

// Package is a complete package on disk.
type Package struct {
	Dir       string
	Manifest  Manifest
	Index     Index
	Checksums []Checksum
}

type writeOptions struct {
	logger   *slog.Logger
	fileMode os.FileMode
	dirMode  os.FileMode

	// beforeRename runs against the staging directory right before it is
	// promoted; tests use it to fail a write at the last moment.
	beforeRename func(staging string) error
}

type WriteOption func(*writeOptions)

func WithLogger(logger *slog.Logger) WriteOption {
	return func(o *writeOptions) {
		o.logger = logger
	}
}

// Write assembles a package in a staging directory next to dir and renames it
// into place once every file is written, fsynced and checksummed. dir must
// not exist. On any failure, including cancellation of ctx, the staging
// directory is removed and dir is never created.
func Write(ctx context.Context, dir string, m Manifest, channels []*channel.Encoded, opts ...WriteOption) (pkg *Package, err error) {
	o := writeOptions{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		fileMode: 0o644,
		dirMode:  0o755,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err = m.Validate(); err != nil {
		return nil, err
	}
	channels, err = sortedChannels(channels)
	if err != nil {
		return nil, err
	}

	dir = filepath.Clean(dir)
	if err = ensureAbsent(dir); err != nil {
		return nil, err
	}
	parent := filepath.Dir(dir)
	if err = os.MkdirAll(parent, o.dirMode); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".staging-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	promoted := false
	defer func() {
		if promoted {
			return
		}
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			o.logger.Error("failed to remove staging directory", slog.String("path", staging), slog.Any("error", rmErr))
		}
	}()
	if err = os.Chmod(staging, o.dirMode); err != nil {
		return nil, fmt.Errorf("setting staging permissions: %w", err)
	}

	pkg, err = stage(ctx, staging, m, channels, &o)
	if err != nil {
		return nil, err
	}

	if o.beforeRename != nil {
		if err = o.beforeRename(staging); err != nil {
			return nil, err
		}
	}
	if err = ctx.Err(); err != nil {
		return nil, fmt.Errorf("package %s not promoted: %w", filepath.Base(dir), err)
	}
	// rename(2) silently replaces an empty directory, check once more
	if err = ensureAbsent(dir); err != nil {
		return nil, err
	}
	if err = os.Rename(staging, dir); err != nil {
		return nil, fmt.Errorf("promoting package: %w", err)
	}
	promoted = true

	if err = syncDir(parent); err != nil {
		o.logger.Warn("failed to sync parent directory", slog.String("path", parent), slog.Any("error", err))
		err = nil
	}

	pkg.Dir = dir
	o.logger.Info("package written",
		slog.String("path", dir),
		slog.String("package_id", m.PackageID),
		slog.Int("channels", len(channels)),
		slog.Float64("duration_seconds", pkg.Index.DurationSeconds))
	return pkg, nil
}

// stage writes every file of the package into staging in order: channels,
// manifest, index, checksums.
func stage(ctx context.Context, staging string, m Manifest, channels []*channel.Encoded, o *writeOptions) (*Package, error) {
	if err := os.Mkdir(filepath.Join(staging, ChannelsDir), o.dirMode); err != nil {
		return nil, fmt.Errorf("creating channels directory: %w", err)
	}

	idx := Index{
		Samples:         make(map[string]int, len(channels)),
		DurationSeconds: duration(channels),
		Checksums:       make(map[string]string, len(channels)+1),
	}

	var total uint64
	channelSums := make([]Checksum, 0, len(channels))
	for _, c := range channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := c.Filename()
		if err := writeFile(staging, rel, c.Data, o.fileMode); err != nil {
			return nil, err
		}
		sum, err := hashFile(staging, rel)
		if err != nil {
			return nil, err
		}
		channelSums = append(channelSums, Checksum{Path: rel, SHA256: sum})
		idx.Samples[c.Name] = c.Samples
		idx.Checksums[rel] = sum
		total += uint64(len(c.Data))

		o.logger.Debug("channel staged",
			slog.String("channel", c.Name),
			slog.Int("samples", c.Samples),
			slog.String("size", humanize.Bytes(uint64(len(c.Data)))))
	}
	if err := syncDir(filepath.Join(staging, ChannelsDir)); err != nil {
		return nil, fmt.Errorf("syncing channels directory: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeJSON(staging, ManifestFile, m, o.fileMode); err != nil {
		return nil, err
	}
	manifestSum, err := hashFile(staging, ManifestFile)
	if err != nil {
		return nil, err
	}
	idx.Checksums[ManifestFile] = manifestSum

	if err = writeJSON(staging, IndexFile, idx, o.fileMode); err != nil {
		return nil, err
	}
	indexSum, err := hashFile(staging, IndexFile)
	if err != nil {
		return nil, err
	}

	sums := make([]Checksum, 0, len(channelSums)+2)
	sums = append(sums, Checksum{Path: ManifestFile, SHA256: manifestSum}, Checksum{Path: IndexFile, SHA256: indexSum})
	sums = append(sums, channelSums...)
	if err = writeFile(staging, ChecksumsFile, formatChecksums(sums), o.fileMode); err != nil {
		return nil, err
	}
	if err = syncDir(staging); err != nil {
		return nil, fmt.Errorf("syncing staging directory: %w", err)
	}

	o.logger.Debug("package staged", slog.String("path", staging), slog.String("channel_bytes", humanize.Bytes(total)))
	return &Package{Manifest: m, Index: idx, Checksums: sums}, nil
}

func sortedChannels(channels []*channel.Encoded) ([]*channel.Encoded, error) {
	if len(channels) == 0 {
		return nil, errors.New("rcp: a package needs at least one channel")
	}
	out := slices.Clone(channels)
	slices.SortFunc(out, func(a, b *channel.Encoded) int { return strings.Compare(a.Name, b.Name) })

	for i, c := range out {
		if c == nil {
			return nil, errors.New("rcp: nil channel")
		}
		if !validChannelName(c.Name) {
			return nil, fmt.Errorf("rcp: invalid channel name %q", c.Name)
		}
		if i > 0 && out[i-1].Name == c.Name {
			return nil, fmt.Errorf("rcp: duplicate channel %q", c.Name)
		}
	}
	return out, nil
}

func validChannelName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\:`) && path.Clean(name) == name
}

// duration is the span between the earliest and the latest timestamp over
// all non-empty channels, in seconds.
func duration(channels []*channel.Encoded) float64 {
	first, last := int64(math.MaxInt64), int64(math.MinInt64)
	for _, c := range channels {
		if c.Samples == 0 {
			continue
		}
		first, last = min(first, c.FirstT), max(last, c.LastT)
	}
	if first > last {
		return 0
	}
	return float64(last-first) / 1e6
}

func ensureAbsent(dir string) error {
	_, err := os.Lstat(dir)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrExists, dir)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("checking destination: %w", err)
	}
}

func writeJSON(root, rel string, v any, mode os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	return writeFile(root, rel, append(data, '\n'), mode)
}

// writeFile creates root/rel, writes data and fsyncs it before closing.
func writeFile(root, rel string, data []byte, mode os.FileMode) (err error) {
	f, err := os.OpenFile(filepath.Join(root, filepath.FromSlash(rel)), os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", rel, err)
	}
	defer closeWithError(f, &err)

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", rel, err)
	}
	return nil
}
