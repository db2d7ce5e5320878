package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/roman-kulish/cloud-readers/internal/catalog"
)

// Claimer is the process-wide collision check: a package ID and its
// destination are claimed before anything is written.
type Claimer interface {
	Claim(ctx context.Context, packageID, path, source string) error
	Complete(ctx context.Context, packageID string) error
	Fail(ctx context.Context, packageID string, cause error) error
}

var _ Claimer = (*catalog.SqliteCatalog)(nil)

// MemoryClaims is a Claimer for a single process, guarded by one lock. It
// follows the catalog's rules: a failed claim gives its path back but keeps
// its ID.
type MemoryClaims struct {
	mu     sync.Mutex
	status map[string]catalog.Status // by package ID
	paths  map[string]string         // open or completed path to package ID
	owner  map[string]string         // package ID to path
}

func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{
		status: make(map[string]catalog.Status),
		paths:  make(map[string]string),
		owner:  make(map[string]string),
	}
}

func (m *MemoryClaims) Claim(_ context.Context, packageID, path, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.status[packageID]; ok {
		return fmt.Errorf("%w: %s at %s", catalog.ErrClaimed, packageID, path)
	}
	if _, ok := m.paths[path]; ok {
		return fmt.Errorf("%w: %s at %s", catalog.ErrClaimed, packageID, path)
	}
	m.status[packageID] = catalog.StatusClaimed
	m.paths[path] = packageID
	m.owner[packageID] = path
	return nil
}

func (m *MemoryClaims) Complete(_ context.Context, packageID string) error {
	return m.finish(packageID, catalog.StatusComplete)
}

func (m *MemoryClaims) Fail(_ context.Context, packageID string, _ error) error {
	return m.finish(packageID, catalog.StatusFailed)
}

func (m *MemoryClaims) finish(packageID string, status catalog.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status[packageID] != catalog.StatusClaimed {
		return fmt.Errorf("%w: %s", catalog.ErrNotClaimed, packageID)
	}
	m.status[packageID] = status
	if status == catalog.StatusFailed {
		delete(m.paths, m.owner[packageID])
	}
	return nil
}
