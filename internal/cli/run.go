package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentflow/internal/config"
	"github.com/lucasnoah/agentflow/internal/db"
	"github.com/lucasnoah/agentflow/internal/github"
	"github.com/lucasnoah/agentflow/internal/invoke"
	"github.com/lucasnoah/agentflow/internal/isolation"
	"github.com/lucasnoah/agentflow/internal/notify"
	"github.com/lucasnoah/agentflow/internal/pipeline"
	"github.com/lucasnoah/agentflow/internal/state"
)

// newRunCmd builds the command for one pipeline variant. Each variant is a
// top-level command so `agentflow sdlc 42` reads like the workflow it runs.
func newRunCmd(name string) *cobra.Command {
	def, err := pipeline.Compose(name, nil)
	if err != nil {
		panic(err)
	}

	cmd := &cobra.Command{
		Use:   name + " <issue-ref> [run-id]",
		Short: "Run the " + def.Title,
		Long: fmt.Sprintf(`Run the %s (%s) for a tracker issue.

Each phase is a subprocess that receives the run state on stdin and writes
its output to .agentflow/runs/<run-id>/<agent>/output.jsonl. When run-id is
omitted a fresh one is generated, or adopted from a state snapshot piped on
stdin, so runs chain: agentflow plan-build 42 | agentflow plan-build-test 42.`,
			def.Title, def.Workflow()),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, name, args)
		},
	}

	if def.HasPhase("test") {
		cmd.Flags().Bool("skip-e2e", false, "Skip end-to-end tests in the test phase")
	}
	if def.HasPhase("review") {
		cmd.Flags().Bool("skip-resolution", false, "Report review findings without auto-resolving them")
	}
	cmd.Flags().Bool("no-notify", false, "Do not post progress comments to the issue")
	return cmd
}

func runPipeline(cmd *cobra.Command, name string, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	def, err := pipeline.Compose(name, cfg)
	if err != nil {
		return err
	}

	issueRef := args[0]
	runID := ""
	if len(args) == 2 {
		runID = args[1]
	}
	if runID == "" {
		if st := stdinState(); st != nil {
			runID = st.RunID
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := state.NewStore(cfg.BaseDir)
	alloc := isolation.NewAllocator(cfg.TreesDir, cfg.Ports.BackendBase, cfg.Ports.FrontendBase, cfg.Ports.PoolSize)
	gh := github.NewClient(&github.ExecRunner{}, cfg.Tracker.Repo)

	// The event log is observability, not control flow: a broken database
	// degrades the run rather than blocking it.
	database, cleanup, err := openDB(cfg)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "WARNING: event log unavailable: %v\n", err)
	} else {
		defer cleanup()
	}

	var sender notify.Sender
	noNotify, _ := cmd.Flags().GetBool("no-notify")
	if !noNotify && cfg.NotificationsEnabled() {
		sender = gh
	}
	notifier := notify.New(sender, cmd.ErrOrStderr())

	exec := pipeline.NewExecutor(store, database, alloc, &invoke.ExecInvoker{}, notifier, gh, cfg)
	exec.SetProgress(cmd.ErrOrStderr())

	skipE2E, _ := cmd.Flags().GetBool("skip-e2e")
	skipResolution, _ := cmd.Flags().GetBool("skip-resolution")

	result, err := exec.Run(ctx, pipeline.RunOpts{
		Def:      def,
		IssueRef: issueRef,
		RunID:    runID,
		Options:  pipeline.Options{SkipE2E: skipE2E, SkipResolution: skipResolution},
	})
	if err != nil {
		cmd.SilenceUsage = true
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s: %s\n", result.RunID, result.Outcome)
	fmt.Fprintf(w, "  Pipeline: %s\n", result.Pipeline)
	fmt.Fprintf(w, "  Issue:    %s\n", result.IssueRef)
	fmt.Fprintf(w, "  Worktree: %s\n", result.Worktree)
	for _, p := range result.Phases {
		fmt.Fprintf(w, "    %s: %s\n", p.Phase, p.Outcome)
	}

	if result.Outcome == pipeline.OutcomeAborted {
		fmt.Fprintf(w, "  Logs:     %s\n", result.LogPath)
		fmt.Fprintf(w, "  Retry:    %s\n", result.Retry)
		cmd.SilenceUsage = true
		return fmt.Errorf("pipeline %s aborted at %s phase (exit %d)", name, result.FailedPhase, result.ExitCode)
	}
	return nil
}

// --- Helpers ---

// loadConfig resolves configuration from --config or the standard locations.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return cfg, nil
}

// openDB opens and migrates the configured event log database.
func openDB(cfg *config.Config) (*db.DB, func(), error) {
	database, err := db.Connect(cfg.Database.Path, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, err
	}
	return database, func() { database.Close() }, nil
}

// stdinState reads a run-state snapshot piped on stdin. Interactive stdin,
// empty input, and garbage all mean no snapshot.
func stdinState() *state.RunState {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return nil
	}
	st, err := state.DecodeStream(os.Stdin)
	if err != nil {
		return nil
	}
	return st
}
