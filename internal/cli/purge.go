package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentflow/internal/worktree"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <run-id>",
	Short: "Remove a run's isolated worktree",
	Long: `Remove the worktree a run executed in. Runs never clean up after
themselves so their output can be inspected; purge is the manual cleanup
step. State and logs under the state directory are kept. Worktrees holding
uncommitted changes are refused unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		deleteBranch, _ := cmd.Flags().GetBool("delete-branch")
		force, _ := cmd.Flags().GetBool("force")

		mgr := worktree.NewManager(&worktree.ExecGit{}, "", cfg.TreesDir)
		opts := worktree.PurgeOpts{DeleteBranch: deleteBranch, Force: force}
		if err := mgr.Purge(args[0], opts); err != nil {
			cmd.SilenceUsage = true
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Purged worktree for run %s\n", args[0])
		return nil
	},
}

func init() {
	purgeCmd.Flags().Bool("delete-branch", false, "Also delete the branch the worktree had checked out")
	purgeCmd.Flags().Bool("force", false, "Remove the worktree even with uncommitted changes")
}
