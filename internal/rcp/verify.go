package rcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roman-kulish/cloud-readers/internal/channel"
)

// durationTolerance is the allowed drift of duration_seconds, in seconds.
const durationTolerance = 1e-6

// IntegrityError lists every problem found while verifying a package.
type IntegrityError struct {
	Dir      string
	Problems []error
}

func (e *IntegrityError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("rcp: package %s failed verification: %s", e.Dir, strings.Join(msgs, "; "))
}

func (e *IntegrityError) Unwrap() []error {
	return e.Problems
}

// Report is what a verification pass found. It is filled in as far as the
// package could be read, even when verification fails.
type Report struct {
	Dir             string
	Manifest        *Manifest
	Index           *Index
	Checksums       []Checksum
	Samples         map[string]int // decoded sample count per channel
	DurationSeconds float64        // recomputed from the decoded channels
}

// Open reads the manifest, index and checksum list of a package without
// verifying it.
func Open(dir string) (*Package, error) {
	pkg := &Package{Dir: dir}
	if err := readJSON(dir, ManifestFile, &pkg.Manifest); err != nil {
		return nil, err
	}
	if err := readJSON(dir, IndexFile, &pkg.Index); err != nil {
		return nil, err
	}
	sums, err := readChecksums(dir)
	if err != nil {
		return nil, err
	}
	pkg.Checksums = sums
	return pkg, nil
}

// Channel decodes one channel of the package.
func (p *Package) Channel(name string) (*channel.Channel, error) {
	data, err := os.ReadFile(filepath.Join(p.Dir, ChannelsDir, name+channelExt))
	if err != nil {
		return nil, err
	}
	return channel.Decode(data)
}

// ChannelNames returns the channels listed in the index, sorted.
func (p *Package) ChannelNames() []string {
	names := make([]string, 0, len(p.Index.Samples))
	for name := range p.Index.Samples {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Verify reads a package back and checks it is exactly what Write would have
// produced: every file is listed in checksums.txt and nothing else is, every
// hash matches the bytes on disk, index.json agrees with checksums.txt and
// with the decoded channels, and every channel decodes with strictly
// increasing timestamps. All problems are reported together in an
// *IntegrityError; nothing is ever repaired.
func Verify(ctx context.Context, dir string) (*Report, error) {
	rep := &Report{Dir: dir, Samples: make(map[string]int)}
	var problems []error
	problem := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	sums, err := readChecksums(dir)
	if err != nil {
		return rep, &IntegrityError{Dir: dir, Problems: []error{err}}
	}
	rep.Checksums = sums

	onDisk, err := listFiles(dir)
	if err != nil {
		return rep, err
	}

	listed := make(map[string]string, len(sums))
	for _, c := range sums {
		if _, dup := listed[c.Path]; dup {
			problem("%s: listed twice in %s", c.Path, ChecksumsFile)
			continue
		}
		listed[c.Path] = c.SHA256
	}
	for _, rel := range onDisk {
		if _, ok := listed[rel]; !ok && rel != ChecksumsFile {
			problem("%s: not listed in %s", rel, ChecksumsFile)
		}
	}
	for _, required := range []string{ManifestFile, IndexFile} {
		if _, ok := listed[required]; !ok {
			problem("%s: missing from %s", required, ChecksumsFile)
		}
	}
	if i := misordered(sums); i >= 0 {
		problem("%s: entry %d (%s) out of order, want manifest, index, then channels by name", ChecksumsFile, i+1, sums[i].Path)
	}

	for _, c := range sums {
		if err = ctx.Err(); err != nil {
			return rep, err
		}
		got, err := hashFile(dir, c.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			problem("%s: listed in %s but missing", c.Path, ChecksumsFile)
		case err != nil:
			problem("%s: %w", c.Path, err)
		case got != c.SHA256:
			problem("%s: checksum mismatch: recorded %s, actual %s", c.Path, c.SHA256, got)
		}
	}

	var m Manifest
	if err = readJSON(dir, ManifestFile, &m); err != nil {
		problem("%w", err)
	} else {
		if err = m.Validate(); err != nil {
			problem("%s: %w", ManifestFile, err)
		}
		rep.Manifest = &m
	}

	var idx Index
	if err = readJSON(dir, IndexFile, &idx); err != nil {
		problem("%w", err)
	} else {
		rep.Index = &idx
		for rel, sum := range listed {
			if rel == IndexFile {
				continue
			}
			if recorded, ok := idx.Checksums[rel]; !ok {
				problem("%s: listed in %s but not in %s", rel, ChecksumsFile, IndexFile)
			} else if recorded != sum {
				problem("%s: %s and %s disagree", rel, IndexFile, ChecksumsFile)
			}
		}
		for rel := range idx.Checksums {
			if _, ok := listed[rel]; !ok || rel == IndexFile {
				problem("%s: listed in %s but not in %s", rel, IndexFile, ChecksumsFile)
			}
		}
	}

	first, last := int64(math.MaxInt64), int64(math.MinInt64)
	for _, rel := range onDisk {
		name, ok := channelName(rel)
		if !ok {
			continue
		}
		if err = ctx.Err(); err != nil {
			return rep, err
		}

		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			problem("%s: %w", rel, err)
			continue
		}
		ch, err := channel.Decode(data)
		if err != nil {
			problem("%s: %w", rel, err)
			continue
		}
		if ch.Name != name {
			problem("%s: holds channel %q", rel, ch.Name)
		}
		rep.Samples[name] = ch.Len()
		if ch.Len() > 0 {
			a, b := ch.Span()
			first, last = min(first, a), max(last, b)
		}
	}
	if first <= last {
		rep.DurationSeconds = float64(last-first) / 1e6
	}

	if rep.Index != nil {
		for name, n := range rep.Samples {
			if want, ok := rep.Index.Samples[name]; !ok {
				problem("channel %s: no %s%s in %s", name, name, samplesSuffix, IndexFile)
			} else if want != n {
				problem("channel %s: %s records %d samples, file has %d", name, IndexFile, want, n)
			}
		}
		for name := range rep.Index.Samples {
			if _, ok := rep.Samples[name]; !ok {
				problem("channel %s: in %s but not readable", name, IndexFile)
			}
		}
		if d := math.Abs(rep.Index.DurationSeconds - rep.DurationSeconds); d > durationTolerance {
			problem("%s: duration_seconds %g, channels span %g", IndexFile, rep.Index.DurationSeconds, rep.DurationSeconds)
		}
	}

	if len(problems) > 0 {
		return rep, &IntegrityError{Dir: dir, Problems: problems}
	}
	return rep, nil
}

// misordered returns the index of the first checksum entry that breaks the
// manifest, index, channels-by-name order, or -1.
func misordered(sums []Checksum) int {
	rank := func(rel string) (int, string) {
		switch rel {
		case ManifestFile:
			return 0, ""
		case IndexFile:
			return 1, ""
		}
		if name, ok := channelName(rel); ok {
			return 2, name
		}
		return 3, rel
	}
	for i := 1; i < len(sums); i++ {
		pr, pk := rank(sums[i-1].Path)
		r, k := rank(sums[i].Path)
		if pr > r || (pr == r && pk > k) {
			return i
		}
	}
	return -1
}

// channelName maps "channels/<name>.pbz" to name.
func channelName(rel string) (string, bool) {
	dir, file := path.Split(rel)
	if dir != ChannelsDir+"/" || !strings.HasSuffix(file, channelExt) {
		return "", false
	}
	name := strings.TrimSuffix(file, channelExt)
	return name, name != ""
}

// listFiles returns every regular file under dir as a slash separated
// relative path.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing package: %w", err)
	}
	slices.Sort(files)
	return files, nil
}

func readJSON(dir, rel string, v any) error {
	data, err := os.ReadFile(filepath.Join(dir, rel))
	if err != nil {
		return fmt.Errorf("reading %s: %w", rel, err)
	}
	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", rel, err)
	}
	return nil
}

func readChecksums(dir string) (sums []Checksum, err error) {
	f, err := os.Open(filepath.Join(dir, ChecksumsFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ChecksumsFile, err)
	}
	defer closeWithError(f, &err)

	sums, err = parseChecksums(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ChecksumsFile, err)
	}
	return sums, nil
}
