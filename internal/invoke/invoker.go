package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Request describes one phase invocation. Command is the argv prefix; the
// issue reference, run id, and flags are appended in that order, matching
// what a human would type to retry the phase by hand.
type Request struct {
	Phase    string
	Command  []string
	IssueRef string
	RunID    string
	Flags    []string
	// Dir is the working directory for the child process.
	Dir string
	// LogPath receives the child's combined stdout and stderr.
	LogPath string
	// Stdin is piped to the child, carrying the run-state snapshot.
	Stdin []byte
	// Env is the fully resolved child environment.
	Env []string
}

// Result carries the only signal the rest of the system understands: the
// child's exit status, verbatim.
type Result struct {
	ExitCode int
}

// Invoker executes one phase as a child process and blocks until it
// terminates. Implementations perform no retries and never inspect the
// child's output for success or failure.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

// Argv returns the full command line for a request.
func (req Request) Argv() []string {
	argv := make([]string, 0, len(req.Command)+2+len(req.Flags))
	argv = append(argv, req.Command...)
	argv = append(argv, req.IssueRef, req.RunID)
	argv = append(argv, req.Flags...)
	return argv
}

// ExecInvoker runs phases with os/exec.
type ExecInvoker struct{}

// Invoke runs the phase to completion. A non-zero exit status is reported in
// the Result, not as an error; errors are reserved for failures to run the
// child at all (missing binary, unwritable log path) and for context
// cancellation, which kills the child.
func (e *ExecInvoker) Invoke(ctx context.Context, req Request) (Result, error) {
	if len(req.Command) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("phase %s: empty command", req.Phase)
	}

	argv := req.Argv()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	cmd.Stdin = bytes.NewReader(req.Stdin)

	if req.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(req.LogPath), 0o755); err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("create log dir: %w", err)
		}
		logFile, err := os.Create(req.LogPath)
		if err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("create log file: %w", err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	err := cmd.Run()
	if err == nil {
		return Result{ExitCode: 0}, nil
	}

	// Cancellation kills the child; report it as such rather than as a
	// phase failure.
	if ctx.Err() != nil {
		return Result{ExitCode: -1}, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode()}, nil
	}
	return Result{ExitCode: -1}, fmt.Errorf("run phase %s: %w", req.Phase, err)
}
