package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harrison/maestro/internal/history"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show deployment history and aggregate insights",
		Long: `Show recorded deployments from the history database.

Prints aggregate insights (totals, success rate, average duration) followed
by the most recent deployment records.

Examples:
  # Show the last 10 deployments
  maestro history

  # Show the last 25 deployments
  maestro history --limit 25`,
		Args: cobra.NoArgs,
		RunE: historyCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .maestro/config.yaml)")
	cmd.Flags().Int("limit", 10, "Number of recent deployments to show")

	return cmd
}

// historyCommand implements the history command logic
func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("deployment history is disabled in config")
	}

	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	insights, err := store.Insights(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load history insights: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== Deployment History ===")
	fmt.Fprintf(out, "Total deployments: %d\n", insights.TotalDeployments)
	if insights.TotalDeployments == 0 {
		fmt.Fprintln(out, "No deployments recorded yet")
		return nil
	}
	fmt.Fprintf(out, "Successes:         %d\n", insights.Successes)
	fmt.Fprintf(out, "Failures:          %d\n", insights.Failures)
	fmt.Fprintf(out, "Rollbacks:         %d\n", insights.Rollbacks)
	fmt.Fprintf(out, "Success rate:      %.1f%%\n", insights.SuccessRate*100)
	fmt.Fprintf(out, "Avg duration:      %.1fs\n", insights.AvgDurationSeconds)
	fmt.Fprintf(out, "Last status:       %s\n\n", insights.LastStatus)

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to load recent deployments: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDEPLOYMENT\tSTATUS\tAGENTS\tSUCCESS\tDURATION")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\t%.1fs\n",
			rec.StartedAt.Format("2006-01-02 15:04"),
			rec.DeploymentID,
			rec.Status,
			strings.Join(rec.Agents, ","),
			rec.SuccessRate,
			rec.DurationSeconds)
	}
	return w.Flush()
}
