package rcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	samplesSuffix      = "_samples"
	durationSecondsKey = "duration_seconds"
	checksumsKey       = "checksums"
)

// Index summarizes the channels of a package. On disk every channel gets its
// own "<name>_samples" key next to duration_seconds and checksums.
type Index struct {
	Samples         map[string]int
	DurationSeconds float64
	Checksums       map[string]string // relative path to hex SHA-256
}

func (idx Index) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(idx.Samples)+2)
	for name, n := range idx.Samples {
		doc[name+samplesSuffix] = n
	}
	doc[durationSecondsKey] = idx.DurationSeconds

	checksums := idx.Checksums
	if checksums == nil {
		checksums = map[string]string{}
	}
	doc[checksumsKey] = checksums

	return json.Marshal(doc)
}

func (idx *Index) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	out := Index{Samples: make(map[string]int)}
	var haveDuration, haveChecksums bool
	for key, raw := range doc {
		var err error
		switch {
		case key == durationSecondsKey:
			haveDuration = true
			err = json.Unmarshal(raw, &out.DurationSeconds)
		case key == checksumsKey:
			haveChecksums = true
			err = json.Unmarshal(raw, &out.Checksums)
		case strings.HasSuffix(key, samplesSuffix) && len(key) > len(samplesSuffix):
			var n int
			err = json.Unmarshal(raw, &n)
			if err == nil && n < 0 {
				err = fmt.Errorf("negative sample count %d", n)
			}
			out.Samples[strings.TrimSuffix(key, samplesSuffix)] = n
		default:
			err = fmt.Errorf("unknown key")
		}
		if err != nil {
			return fmt.Errorf("index key %q: %w", key, err)
		}
	}

	if !haveDuration {
		return fmt.Errorf("index is missing %q", durationSecondsKey)
	}
	if !haveChecksums {
		return fmt.Errorf("index is missing %q", checksumsKey)
	}
	*idx = out
	return nil
}
