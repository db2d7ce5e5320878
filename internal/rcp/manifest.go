package rcp

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Version is the protocol tag written into every manifest.
const Version = "rcp_2025"

const (
	ManifestFile  = "manifest.json"
	IndexFile     = "index.json"
	ChecksumsFile = "checksums.txt"
	ChannelsDir   = "channels"
	channelExt    = ".pbz"
)

// Manifest describes where a package came from. It is written once and never
// edited afterwards.
type Manifest struct {
	Version       string            `json:"version"`
	PackageID     string            `json:"package_id"`
	Source        string            `json:"source"`
	DeviceProfile string            `json:"device_profile"`
	DPI           float64           `json:"dpi"`
	CreatedAt     time.Time         `json:"created_at"`
	Attributes    map[string]string `json:"attributes"`
}

// NewManifest returns a manifest with a fresh random package ID and the
// current UTC time truncated to the second.
func NewManifest(source, deviceProfile string, dpi float64, attributes map[string]string) Manifest {
	if attributes == nil {
		attributes = make(map[string]string)
	}
	return Manifest{
		Version:       Version,
		PackageID:     uuid.NewString(),
		Source:        source,
		DeviceProfile: deviceProfile,
		DPI:           dpi,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
		Attributes:    attributes,
	}
}

func (m *Manifest) Validate() error {
	if m.Version != Version {
		return fmt.Errorf("rcp.Manifest: unsupported version %q", m.Version)
	}
	id, err := uuid.Parse(m.PackageID)
	if err != nil {
		return fmt.Errorf("rcp.Manifest: invalid package ID %q: %w", m.PackageID, err)
	}
	if id.Version() != 4 {
		return fmt.Errorf("rcp.Manifest: package ID %s is not a version 4 UUID", id)
	}
	if m.DPI < 0 || math.IsNaN(m.DPI) || math.IsInf(m.DPI, 0) {
		return fmt.Errorf("rcp.Manifest: invalid dpi %g", m.DPI)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("rcp.Manifest: missing creation time")
	}
	if _, offset := m.CreatedAt.Zone(); offset != 0 {
		return fmt.Errorf("rcp.Manifest: creation time %s is not UTC", m.CreatedAt)
	}
	return nil
}
