package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasnoah/agentflow/internal/config"
	"github.com/lucasnoah/agentflow/internal/db"
	"github.com/lucasnoah/agentflow/internal/github"
	"github.com/lucasnoah/agentflow/internal/invoke"
	"github.com/lucasnoah/agentflow/internal/isolation"
	"github.com/lucasnoah/agentflow/internal/notify"
	"github.com/lucasnoah/agentflow/internal/state"
)

// Executor statuses. One run moves
// idle → running → {advancing, warned, aborted} → running → … → completed.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusAdvancing = "advancing"
	StatusWarned    = "warned"
	StatusAborted   = "aborted"
	StatusCompleted = "completed"
)

// Run outcomes.
const (
	OutcomeCompleted       = "completed"
	OutcomeCompletedWarned = "completed_warned"
	OutcomeAborted         = "aborted"
)

// Executor drives one pipeline run: it resolves state, allocates isolation,
// invokes each phase in order, and applies the fatal/warn policy to the exit
// codes. All collaborators are injected; the executor holds no ambient state.
type Executor struct {
	store    *state.Store
	database *db.DB
	alloc    *isolation.Allocator
	invoker  invoke.Invoker
	notifier *notify.Notifier
	gh       *github.Client
	cfg      *config.Config
	progress io.Writer
	status   string
}

// NewExecutor creates an Executor. gh may be nil when no tracker repo is
// configured; issue caching is skipped then.
func NewExecutor(
	store *state.Store,
	database *db.DB,
	alloc *isolation.Allocator,
	invoker invoke.Invoker,
	notifier *notify.Notifier,
	gh *github.Client,
	cfg *config.Config,
) *Executor {
	return &Executor{
		store:    store,
		database: database,
		alloc:    alloc,
		invoker:  invoker,
		notifier: notifier,
		gh:       gh,
		cfg:      cfg,
		status:   StatusIdle,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Executor) SetProgress(w io.Writer) {
	e.progress = w
}

// Status returns the executor's current position in the run lifecycle.
func (e *Executor) Status() string {
	return e.status
}

func (e *Executor) setStatus(s string) {
	e.status = s
}

// logf prints a progress line if a progress writer is configured.
func (e *Executor) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// RunOpts configures a pipeline run.
type RunOpts struct {
	Def      Definition
	IssueRef string
	// RunID resumes an existing run; empty starts a new one.
	RunID   string
	Options Options
}

// Result captures the outcome of a pipeline run.
type Result struct {
	RunID       string              `json:"run_id"`
	Pipeline    string              `json:"pipeline"`
	IssueRef    string              `json:"issue_ref"`
	Outcome     string              `json:"outcome"` // "completed", "completed_warned", "aborted"
	Phases      []state.PhaseRecord `json:"phases"`
	Worktree    string              `json:"worktree,omitempty"`
	FailedPhase string              `json:"failed_phase,omitempty"`
	ExitCode    int                 `json:"exit_code,omitempty"`
	LogPath     string              `json:"log_path,omitempty"`
	Retry       string              `json:"retry,omitempty"`
}

// Run executes the pipeline to completion, abort, or cancellation. A fatal
// phase failure is reported in the Result, not as an error; errors are
// reserved for setup failures, state corruption, unspawnable phases, and
// context cancellation.
func (e *Executor) Run(ctx context.Context, opts RunOpts) (*Result, error) {
	e.setStatus(StatusIdle)

	if len(opts.Def.Phases) == 0 {
		return nil, fmt.Errorf("pipeline %q has no phases", opts.Def.Name)
	}
	if err := github.ValidateIssueRef(opts.IssueRef); err != nil {
		return nil, err
	}
	if err := ValidateOptions(opts.Def, opts.Options); err != nil {
		return nil, err
	}

	st, err := e.resolveState(opts)
	if err != nil {
		return nil, err
	}
	e.logf("run %s: %s for issue %s", st.RunID, opts.Def.Name, opts.IssueRef)

	alloc, err := e.alloc.Allocate(st.RunID)
	if err != nil {
		return nil, fmt.Errorf("allocate isolation: %w", err)
	}
	if st.WorktreePath == "" || st.Ports == nil {
		st, err = e.updateState(st.RunID, func(s *state.RunState) {
			s.SetIsolation(alloc.WorktreePath, alloc.Ports)
		})
		if err != nil {
			return nil, fmt.Errorf("record isolation: %w", err)
		}
	}
	e.logf("worktree %s, ports %d/%d", st.WorktreePath, st.Ports.Backend, st.Ports.Frontend)

	// Cache the issue snapshot for phases to read. Failing here also catches
	// bad issue refs before any phase runs.
	if e.gh != nil {
		if _, err := e.gh.CacheIssue(opts.IssueRef, e.store.IssuePath(st.RunID)); err != nil {
			return nil, fmt.Errorf("fetch issue %s: %w", opts.IssueRef, err)
		}
	}

	result := &Result{
		RunID:    st.RunID,
		Pipeline: opts.Def.Name,
		IssueRef: opts.IssueRef,
		Worktree: st.WorktreePath,
	}

	e.logEvent(st, opts.Def, "", db.EventRunStarted, nil, "")
	e.notifier.PipelineStarted(notify.Start{
		IssueRef:       opts.IssueRef,
		RunID:          st.RunID,
		Title:          opts.Def.Title,
		Workflow:       opts.Def.Workflow(),
		HasTest:        opts.Def.HasPhase("test"),
		HasReview:      opts.Def.HasPhase("review"),
		SkipE2E:        opts.Options.SkipE2E,
		SkipResolution: opts.Options.SkipResolution,
		First:          *step(opts.Def, 0),
	})

	total := len(opts.Def.Phases)
	var checklist []notify.PhaseOutcome

	for i, phase := range opts.Def.Phases {
		e.setStatus(StatusRunning)
		e.logf("phase %d/%d: %s", i+1, total, phase.Name)

		snapshot, err := st.Marshal()
		if err != nil {
			return nil, err
		}

		logPath := e.store.PhaseLogPath(st.RunID, phase.Agent)
		req := invoke.Request{
			Phase:    phase.Name,
			Command:  phase.Command,
			IssueRef: opts.IssueRef,
			RunID:    st.RunID,
			Flags:    PhaseFlags(phase, opts.Options),
			LogPath:  logPath,
			Stdin:    snapshot,
			Env:      e.phaseEnv(st),
		}
		e.logEvent(st, opts.Def, phase.Name, db.EventPhaseStarted, nil, "")
		e.logf("running: %s", strings.Join(req.Argv(), " "))

		res, ierr := e.invoker.Invoke(ctx, req)
		if ierr != nil {
			e.setStatus(StatusAborted)
			result.Outcome = OutcomeAborted
			result.FailedPhase = phase.Name
			result.ExitCode = res.ExitCode
			if ctx.Err() != nil {
				e.logEvent(st, opts.Def, "", db.EventRunAborted, nil, "cancelled during "+phase.Name)
				return result, ierr
			}
			code := res.ExitCode
			e.logEvent(st, opts.Def, phase.Name, db.EventPhaseFailed, &code, ierr.Error())
			e.logEvent(st, opts.Def, "", db.EventRunAborted, nil, phase.Name)
			return result, fmt.Errorf("invoke phase %s: %w", phase.Name, ierr)
		}

		// The phase process owns the state file while it runs; pick up
		// whatever it wrote before recording the outcome.
		st, err = e.store.Load(st.RunID)
		if err != nil {
			e.setStatus(StatusAborted)
			result.Outcome = OutcomeAborted
			result.FailedPhase = phase.Name
			return result, fmt.Errorf("reload state after phase %s: %w", phase.Name, err)
		}

		outcome := "success"
		if res.ExitCode != 0 {
			if phase.Fatal {
				outcome = "failure"
			} else {
				outcome = "warning"
			}
		}
		stamp := time.Now().UTC().Format(time.RFC3339)
		st, err = e.updateState(st.RunID, func(s *state.RunState) {
			s.AppendPhase(phase.Name, outcome, stamp)
		})
		if err != nil {
			return nil, fmt.Errorf("record phase %s outcome: %w", phase.Name, err)
		}
		result.Phases = append(result.Phases, state.PhaseRecord{Phase: phase.Name, Outcome: outcome, Timestamp: stamp})

		code := res.ExitCode
		switch {
		case res.ExitCode == 0:
			e.setStatus(StatusAdvancing)
			e.logEvent(st, opts.Def, phase.Name, db.EventPhaseCompleted, nil, "")
			checklist = append(checklist, notify.PhaseOutcome{Summary: phase.Summary})
			if i+1 < total {
				e.notifier.PhaseSucceeded(notify.PhaseDone{
					IssueRef: opts.IssueRef,
					RunID:    st.RunID,
					Title:    phase.Title,
					Next:     step(opts.Def, i+1),
				})
			}

		case phase.Fatal:
			e.setStatus(StatusAborted)
			e.logEvent(st, opts.Def, phase.Name, db.EventPhaseFailed, &code, "")
			retry := retryCommand(st.WorktreePath, req)
			e.notifier.PhaseFailed(notify.PhaseFailure{
				IssueRef: opts.IssueRef,
				RunID:    st.RunID,
				Title:    phase.Title,
				Summary:  phase.Summary,
				Index:    i + 1,
				Total:    total,
				ExitCode: res.ExitCode,
				LogPath:  logPath,
				Retry:    retry,
			})
			e.logEvent(st, opts.Def, "", db.EventRunAborted, &code, phase.Name)
			result.Outcome = OutcomeAborted
			result.FailedPhase = phase.Name
			result.ExitCode = res.ExitCode
			result.LogPath = logPath
			result.Retry = retry
			return result, nil

		default:
			e.setStatus(StatusWarned)
			e.logEvent(st, opts.Def, phase.Name, db.EventPhaseWarned, &code, "")
			checklist = append(checklist, notify.PhaseOutcome{Summary: phase.Summary, Warned: true})
			e.notifier.PhaseWarned(notify.PhaseWarning{
				IssueRef: opts.IssueRef,
				RunID:    st.RunID,
				Title:    phase.Title,
				Summary:  phase.Summary,
				Index:    i + 1,
				Total:    total,
				LogPath:  logPath,
				Next:     step(opts.Def, i+1),
			})
		}
	}

	e.setStatus(StatusCompleted)
	result.Outcome = OutcomeCompleted
	for _, c := range checklist {
		if c.Warned {
			result.Outcome = OutcomeCompletedWarned
			break
		}
	}
	e.logEvent(st, opts.Def, "", db.EventRunCompleted, nil, result.Outcome)
	e.notifier.PipelineCompleted(notify.Completion{
		IssueRef: opts.IssueRef,
		RunID:    st.RunID,
		Title:    opts.Def.Title,
		Phases:   checklist,
		Worktree: st.WorktreePath,
	})
	return result, nil
}

// resolveState loads or creates the run's persisted state. Stream or disk
// corruption is fatal; a provided but unknown run id starts a fresh run
// under that id.
func (e *Executor) resolveState(opts RunOpts) (*state.RunState, error) {
	runID := opts.RunID
	if runID == "" {
		runID = state.NewRunID()
	}

	st, err := e.store.Load(runID)
	switch {
	case err == nil:
		if st.IssueRef != "" && st.IssueRef != opts.IssueRef {
			return nil, fmt.Errorf("run %s belongs to issue %s, not %s", runID, st.IssueRef, opts.IssueRef)
		}
	case errors.Is(err, state.ErrNotFound):
		if _, cerr := e.store.Create(runID); cerr != nil {
			return nil, fmt.Errorf("create run state: %w", cerr)
		}
		st = nil
	default:
		return nil, fmt.Errorf("load run state: %w", err)
	}

	if st == nil || st.IssueRef == "" {
		return e.updateState(runID, func(s *state.RunState) {
			s.IssueRef = opts.IssueRef
		})
	}
	return st, nil
}

// updateState applies fn through the store and returns the fresh record.
func (e *Executor) updateState(runID string, fn func(*state.RunState)) (*state.RunState, error) {
	if err := e.store.Update(runID, fn); err != nil {
		return nil, err
	}
	return e.store.Load(runID)
}

// phaseEnv builds the whitelisted child environment for one phase.
func (e *Executor) phaseEnv(st *state.RunState) []string {
	var extra []string
	if e.cfg != nil {
		extra = e.cfg.Env.Passthrough
	}
	var backend, frontend int
	if st.Ports != nil {
		backend, frontend = st.Ports.Backend, st.Ports.Frontend
	}
	stateDir := e.store.BaseDir()
	if abs, err := filepath.Abs(stateDir); err == nil {
		stateDir = abs
	}
	return invoke.SafeEnv(st.RunID, stateDir, backend, frontend, extra)
}

// logEvent records a row in the event log, best-effort.
func (e *Executor) logEvent(st *state.RunState, def Definition, phase, event string, exitCode *int, detail string) {
	if e.database == nil {
		return
	}
	_ = e.database.LogPhaseEvent(st.RunID, st.IssueRef, def.Name, phase, event, exitCode, detail)
}

// step describes phase idx for teaser lines, or nil past the end.
func step(def Definition, idx int) *notify.Step {
	if idx < 0 || idx >= len(def.Phases) {
		return nil
	}
	p := def.Phases[idx]
	return &notify.Step{
		Emoji:    p.Emoji,
		Index:    idx + 1,
		Total:    len(def.Phases),
		Progress: p.Progress,
	}
}

// retryCommand renders the literal command to re-run one phase by hand.
func retryCommand(worktree string, req invoke.Request) string {
	return fmt.Sprintf("cd %s && %s", worktree, strings.Join(req.Argv(), " "))
}
