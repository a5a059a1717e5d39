package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentflow/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and update run state",
}

var stateGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Print the persisted state of a run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		store := state.NewStore(cfg.BaseDir)
		st, err := store.Load(args[0])
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var stateSetCmd = &cobra.Command{
	Use:   "set <run-id> <key=value>...",
	Short: "Merge fields into a run's state (called by phase scripts)",
	Long: `Merge key=value pairs into a run's persisted state. Recognized keys are
issue_ref, branch_name, plan_file, issue_class, and worktree_path; unknown
keys are dropped silently so newer phase scripts stay compatible with older
agentflow builds.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fields := make(map[string]any, len(args)-1)
		for _, pair := range args[1:] {
			key, value, ok := strings.Cut(pair, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid field %q: expected key=value", pair)
			}
			fields[key] = value
		}

		store := state.NewStore(cfg.BaseDir)
		if err := store.UpdateFields(args[0], fields); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated state for run %s\n", args[0])
		return nil
	},
}

func init() {
	stateCmd.AddCommand(stateGetCmd)
	stateCmd.AddCommand(stateSetCmd)
}
