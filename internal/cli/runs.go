package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentflow/internal/state"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List all workflow runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		store := state.NewStore(cfg.BaseDir)
		runs, err := store.List()
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, err := json.MarshalIndent(runs, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal json: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-10s %-10s %-10s %-10s %-22s %s\n", "RUN", "ISSUE", "PHASE", "OUTCOME", "UPDATED", "WORKTREE")
		fmt.Fprintf(w, "%-10s %-10s %-10s %-10s %-22s %s\n",
			strings.Repeat("-", 10),
			strings.Repeat("-", 10),
			strings.Repeat("-", 10),
			strings.Repeat("-", 10),
			strings.Repeat("-", 22),
			strings.Repeat("-", 8))
		for _, r := range runs {
			phase, outcome := "", ""
			if n := len(r.PhaseHistory); n > 0 {
				phase = r.PhaseHistory[n-1].Phase
				outcome = r.PhaseHistory[n-1].Outcome
			}
			fmt.Fprintf(w, "%-10s %-10s %-10s %-10s %-22s %s\n",
				r.RunID, r.IssueRef, phase, outcome, r.UpdatedAt, r.WorktreePath)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().String("format", "text", "Output format: text or json")
}
