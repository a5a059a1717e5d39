package cli

import (
	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentflow/internal/state"
	"github.com/lucasnoah/agentflow/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local status API",
	Long: `Start a read-only JSON API on localhost exposing run state and the event
log: /api/runs, /api/runs/{id}, and /api/runs/{id}/events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		database, cleanup, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		port, _ := cmd.Flags().GetInt("port")
		store := state.NewStore(cfg.BaseDir)
		return web.NewServer(store, database, port).Start()
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
}
