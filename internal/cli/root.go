package cli

import (
	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentflow/internal/pipeline"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "agentflow",
	Short: "agentflow — AI developer workflows for tracker issues",
	Long: `agentflow runs AI developer workflows against tracker issues. A workflow
is a fixed sequence of phases (plan, build, test, review, document, patch),
each executed as a subprocess in an isolated worktree with its own port pair.

Run state lives under .agentflow/ (JSON per run, SQLite for the event log).
Progress is posted back to the issue as comments after every phase.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to an agentflow.yaml (default: auto-discover)")

	for _, name := range pipeline.VariantNames() {
		rootCmd.AddCommand(newRunCmd(name))
	}
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
