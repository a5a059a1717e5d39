package isolation

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/lucasnoah/agentflow/internal/state"
)

// Allocation is the isolated execution context assigned to one run: a private
// working directory and a port pair no other active run should be using.
type Allocation struct {
	WorktreePath string
	Ports        state.Ports
}

// Allocator derives per-run working directories and port assignments.
// Derivation is a pure function of the run identifier, so repeated calls for
// the same run return the same allocation and no cross-process coordination
// is needed.
type Allocator struct {
	treesDir     string
	backendBase  int
	frontendBase int
	poolSize     int
}

// NewAllocator creates an Allocator that places worktrees under treesDir and
// assigns ports from [backendBase, backendBase+poolSize) and
// [frontendBase, frontendBase+poolSize).
func NewAllocator(treesDir string, backendBase, frontendBase, poolSize int) *Allocator {
	return &Allocator{
		treesDir:     treesDir,
		backendBase:  backendBase,
		frontendBase: frontendBase,
		poolSize:     poolSize,
	}
}

// WorktreePath returns the private working directory for a run without
// creating it.
func (a *Allocator) WorktreePath(runID string) string {
	return filepath.Join(a.treesDir, runID)
}

// Ports returns the port pair derived from a run identifier.
func (a *Allocator) Ports(runID string) state.Ports {
	h := fnv.New32a()
	h.Write([]byte(runID))
	slot := int(h.Sum32()) % a.poolSize
	if slot < 0 {
		slot += a.poolSize
	}
	return state.Ports{
		Backend:  a.backendBase + slot,
		Frontend: a.frontendBase + slot,
	}
}

// Allocate creates the run's working directory and derives its ports.
// Idempotent: an existing directory is reused. A directory that cannot be
// created makes the run unable to proceed, so the error is fatal to the
// caller before any phase is invoked.
func (a *Allocator) Allocate(runID string) (*Allocation, error) {
	if err := state.ValidateRunID(runID); err != nil {
		return nil, err
	}
	dir := a.WorktreePath(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create worktree dir %s: %w", dir, err)
	}
	return &Allocation{
		WorktreePath: dir,
		Ports:        a.Ports(runID),
	}, nil
}
