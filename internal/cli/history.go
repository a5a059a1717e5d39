package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <run-id>",
	Short: "Show the event log for a run",
	Args:  cobra.ExactArgs(1),
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

		events, err := database.RunHistory(args[0])
		if err != nil {
			return fmt.Errorf("run history: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, err := json.MarshalIndent(events, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal json: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tPHASE\tEXIT\tDETAIL")
		for _, e := range events {
			exit := ""
			if e.ExitCode != nil {
				exit = fmt.Sprintf("%d", *e.ExitCode)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp, e.Event, e.Phase, exit, e.Detail)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().String("format", "text", "Output format: text or json")
}
