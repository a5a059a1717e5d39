package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentflow/internal/analytics"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query workflow performance analytics",
}

var analyticsPhaseDurationCmd = &cobra.Command{
	Use:   "phase-duration",
	Short: "Average and percentile durations per phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyticsReport(cmd, func(database analytics.DB, since string) (interface{}, error) {
			return analytics.QueryPhaseDurations(database, since)
		}, func(w *tabwriter.Writer, v interface{}) {
			fmt.Fprintln(w, "PHASE\tCOUNT\tAVG(min)\tP50\tP95")
			for _, r := range v.([]analytics.PhaseDuration) {
				fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\n", r.Phase, r.Count, r.Avg, r.P50, r.P95)
			}
		})
	},
}

var analyticsOutcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "Success, warning, and failure rates per phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyticsReport(cmd, func(database analytics.DB, since string) (interface{}, error) {
			return analytics.QueryPhaseOutcomes(database, since)
		}, func(w *tabwriter.Writer, v interface{}) {
			fmt.Fprintln(w, "PHASE\tTOTAL\tSUCCESS%\tWARNED%\tFAILED%")
			for _, r := range v.([]analytics.PhaseOutcomes) {
				fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\n", r.Phase, r.Total, r.Succeeded, r.Warned, r.Failed)
			}
		})
	},
}

var analyticsThroughputCmd = &cobra.Command{
	Use:   "throughput",
	Short: "Run volume and duration per week",
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyticsReport(cmd, func(database analytics.DB, since string) (interface{}, error) {
			return analytics.QueryThroughput(database, since)
		}, func(w *tabwriter.Writer, v interface{}) {
			fmt.Fprintln(w, "WEEK\tSTARTED\tCOMPLETED\tWARNED\tABORTED\tAVG(h)")
			for _, r := range v.([]analytics.Throughput) {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1f\n",
					r.Period, r.Started, r.Completed, r.Warned, r.Aborted, r.AvgHours)
			}
		})
	},
}

// analyticsReport runs one query and renders it as a table or JSON.
func analyticsReport(
	cmd *cobra.Command,
	query func(analytics.DB, string) (interface{}, error),
	render func(*tabwriter.Writer, interface{}),
) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	database, cleanup, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	since, _ := cmd.Flags().GetString("since")
	results, err := query(database, since)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "json" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	render(w, results)
	return w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{analyticsPhaseDurationCmd, analyticsOutcomesCmd, analyticsThroughputCmd} {
		c.Flags().String("since", "", "Only include events at or after this RFC 3339 timestamp")
		c.Flags().String("format", "text", "Output format: text or json")
		analyticsCmd.AddCommand(c)
	}
}
