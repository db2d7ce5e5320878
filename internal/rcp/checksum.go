package rcp

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Checksum is one line of checksums.txt.
type Checksum struct {
	Path   string // slash separated, relative to the package root
	SHA256 string // lower case hex
}

func (c Checksum) String() string {
	return c.SHA256 + "  " + c.Path
}

// hashFile returns the hex SHA-256 of the file at root/rel as it is on disk.
func hashFile(root, rel string) (sum string, err error) {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	defer closeWithError(f, &err)

	h := sha256.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", rel, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func formatChecksums(sums []Checksum) []byte {
	var buf bytes.Buffer
	for _, c := range sums {
		buf.WriteString(c.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// parseChecksums reads checksums.txt. Every line must be "<hex>  <path>".
func parseChecksums(r io.Reader) ([]Checksum, error) {
	var sums []Checksum
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		sum, path, ok := strings.Cut(text, "  ")
		if !ok || path == "" {
			return nil, fmt.Errorf("line %d: malformed entry %q", line, text)
		}
		if !filepath.IsLocal(filepath.FromSlash(path)) {
			return nil, fmt.Errorf("line %d: path %q escapes the package", line, path)
		}
		if len(sum) != sha256.Size*2 {
			return nil, fmt.Errorf("line %d: %q is not a SHA-256 digest", line, sum)
		}
		if _, err := hex.DecodeString(sum); err != nil {
			return nil, fmt.Errorf("line %d: %q is not a SHA-256 digest", line, sum)
		}
		sums = append(sums, Checksum{Path: path, SHA256: sum})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
