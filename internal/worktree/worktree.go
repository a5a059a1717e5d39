package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lucasnoah/agentflow/internal/state"
)

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.Command.
type ExecGit struct{}

func (g *ExecGit) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Manager cleans up per-run worktrees. Completed runs leave their worktree
// behind so results can be inspected; purging is always an explicit, manual
// operation and never touches run state or logs.
type Manager struct {
	git      GitRunner
	repoDir  string // git repo root the worktrees belong to; empty means cwd
	treesDir string // where per-run worktrees live
}

// NewManager creates a worktree manager.
func NewManager(git GitRunner, repoDir, treesDir string) *Manager {
	return &Manager{git: git, repoDir: repoDir, treesDir: treesDir}
}

// Path returns the worktree path for a run.
func (m *Manager) Path(runID string) string {
	return filepath.Join(m.treesDir, runID)
}

// PurgeOpts holds options for purging a run's worktree.
type PurgeOpts struct {
	// DeleteBranch also deletes the branch the worktree had checked out.
	DeleteBranch bool
	// Force discards uncommitted work in the worktree.
	Force bool
}

// Purge removes a run's worktree. Without Force, worktrees holding
// uncommitted work are left alone. A directory the plan phase never
// registered with git is removed directly.
func (m *Manager) Purge(runID string, opts PurgeOpts) error {
	if err := state.ValidateRunID(runID); err != nil {
		return err
	}
	path := m.Path(runID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("no worktree for run %s", runID)
	}

	var branch string
	if opts.DeleteBranch {
		if out, err := m.git.Run(path, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
			branch = out
		}
	}

	args := []string{"worktree", "remove"}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if _, err := m.git.Run(m.repoDir, args...); err != nil {
		if !strings.Contains(err.Error(), "not a working tree") {
			return fmt.Errorf("remove worktree: %w", err)
		}
		if rerr := os.RemoveAll(path); rerr != nil {
			return fmt.Errorf("remove %s: %w", path, rerr)
		}
	}

	if opts.DeleteBranch && branch != "" && branch != "main" && branch != "master" && branch != "HEAD" {
		if _, err := m.git.Run(m.repoDir, "branch", "-d", branch); err != nil {
			return fmt.Errorf("delete branch %q: %w", branch, err)
		}
	}
	return nil
}
