package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Sentinel errors for run-state operations. Callers branch on these with
// errors.Is after unwrapping.
var (
	// ErrInvalidIdentifier reports an empty or malformed run identifier.
	ErrInvalidIdentifier = errors.New("invalid run identifier")
	// ErrNotFound reports that no persisted record exists for a run.
	ErrNotFound = errors.New("run not found")
	// ErrCorrupt reports that a persisted record is not well-formed JSON.
	ErrCorrupt = errors.New("run state corrupt")
)

// Ports holds the network ports reserved for one run. Both are derived from
// the run identifier at allocation time and never change afterwards.
type Ports struct {
	Backend  int `json:"backend"`
	Frontend int `json:"frontend"`
}

// PhaseRecord is one entry in a run's phase history.
type PhaseRecord struct {
	Phase     string `json:"phase"`
	Outcome   string `json:"outcome"`
	Timestamp string `json:"timestamp"`
}

// RunState is the persistent record of one workflow run. It is the single
// source of truth across phase processes; no in-memory copy outlives the
// process that loaded it.
type RunState struct {
	RunID        string        `json:"run_id"`
	IssueRef     string        `json:"issue_ref,omitempty"`
	BranchName   string        `json:"branch_name,omitempty"`
	PlanFile     string        `json:"plan_file,omitempty"`
	IssueClass   string        `json:"issue_class,omitempty"`
	WorktreePath string        `json:"worktree_path,omitempty"`
	Ports        *Ports        `json:"ports,omitempty"`
	PhaseHistory []PhaseRecord `json:"phase_history,omitempty"`
	CreatedAt    string        `json:"created_at,omitempty"`
	UpdatedAt    string        `json:"updated_at,omitempty"`
}

// New returns a RunState with only the run identifier populated.
func New(runID string) (*RunState, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}
	return &RunState{RunID: runID}, nil
}

// NewRunID generates a fresh 8-character run identifier.
func NewRunID() string {
	return uuid.NewString()[:8]
}

// ValidateRunID checks that a run identifier is usable as a state and
// directory namespace key.
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if len(id) > 64 {
		return fmt.Errorf("%w: %q exceeds 64 characters", ErrInvalidIdentifier, id)
	}
	if strings.ContainsAny(id, "/\\ \t\n") || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}

// ApplyFields merges recognized fields into the state. Unknown keys are
// dropped silently, and set-once fields already holding a value are left
// alone. Non-string values are ignored.
func (st *RunState) ApplyFields(fields map[string]any) {
	for key, raw := range fields {
		val, ok := raw.(string)
		if !ok {
			continue
		}
		switch key {
		case "issue_ref":
			st.IssueRef = val
		case "branch_name":
			st.BranchName = val
		case "plan_file":
			st.PlanFile = val
		case "issue_class":
			st.IssueClass = val
		case "worktree_path":
			if st.WorktreePath == "" {
				st.WorktreePath = val
			}
		}
	}
}

// SetIsolation records the worktree path and ports assigned to this run.
// Both are set exactly once; later calls are no-ops.
func (st *RunState) SetIsolation(worktree string, ports Ports) {
	if st.WorktreePath == "" {
		st.WorktreePath = worktree
	}
	if st.Ports == nil {
		p := ports
		st.Ports = &p
	}
}

// AppendPhase adds an entry to the run's phase history.
func (st *RunState) AppendPhase(phase, outcome, timestamp string) {
	st.PhaseHistory = append(st.PhaseHistory, PhaseRecord{
		Phase:     phase,
		Outcome:   outcome,
		Timestamp: timestamp,
	})
}

// Marshal serializes the state for handing across a process boundary.
func (st *RunState) Marshal() ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal run state: %w", err)
	}
	return data, nil
}

// DecodeStream reads a state snapshot from a byte stream. Empty, whitespace,
// or malformed input yields (nil, nil) rather than an error: callers use this
// path opportunistically to check whether anything was piped at all.
func DecodeStream(r io.Reader) (*RunState, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read state stream: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, nil
	}
	if st.RunID == "" {
		return nil, nil
	}
	return &st, nil
}
