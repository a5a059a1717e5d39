package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Store manages run-state records on disk. Each run lives in its own
// directory under <baseDir>/runs/, keyed by run identifier alone, so
// concurrent runs never contend for the same file.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// RunDir returns the directory holding all artifacts for a run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.baseDir, "runs", runID)
}

// statePath returns the path to the state.json file for a run.
func (s *Store) statePath(runID string) string {
	return filepath.Join(s.RunDir(runID), "state.json")
}

// PhaseLogPath returns where a phase's raw output is captured, namespaced
// by the agent name acting in that phase.
func (s *Store) PhaseLogPath(runID, agent string) string {
	return filepath.Join(s.RunDir(runID), agent, "output.jsonl")
}

// IssuePath returns where the cached issue snapshot for a run is stored.
func (s *Store) IssuePath(runID string) string {
	return filepath.Join(s.RunDir(runID), "issue.json")
}

// Create initialises a new run record on disk with only the identifier
// populated. Fails when the identifier is invalid or the run already exists.
func (s *Store) Create(runID string) (*RunState, error) {
	st, err := New(runID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.statePath(runID)); err == nil {
		return nil, fmt.Errorf("run %s already exists", runID)
	}
	st.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := WriteJSON(s.statePath(runID), st); err != nil {
		return nil, fmt.Errorf("write state.json: %w", err)
	}
	return st, nil
}

// Load reads the persisted state for a run.
func (s *Store) Load(runID string) (*RunState, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.statePath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("read state for %s: %w", runID, err)
	}
	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, runID, err)
	}
	if st.RunID == "" {
		return nil, fmt.Errorf("%w: %s: missing run_id", ErrCorrupt, runID)
	}
	return &st, nil
}

// Save atomically overwrites the on-disk record for st's run.
func (s *Store) Save(st *RunState) error {
	if err := ValidateRunID(st.RunID); err != nil {
		return err
	}
	return WriteJSON(s.statePath(st.RunID), st)
}

// Update performs an atomic read-modify-write of a run's state.
func (s *Store) Update(runID string, fn func(*RunState)) error {
	st, err := s.Load(runID)
	if err != nil {
		return err
	}
	fn(st)
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return s.Save(st)
}

// UpdateFields merges recognized fields into a run's persisted state.
// Unknown keys are dropped, not errors.
func (s *Store) UpdateFields(runID string, fields map[string]any) error {
	return s.Update(runID, func(st *RunState) {
		st.ApplyFields(fields)
	})
}

// List returns all persisted runs sorted by run identifier. Broken records
// are skipped.
func (s *Store) List() ([]RunState, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	var runs []RunState
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		st, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *st)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].RunID < runs[j].RunID
	})
	return runs, nil
}
