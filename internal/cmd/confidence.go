package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/maestro/internal/confidence"
	"github.com/harrison/maestro/internal/history"
	"github.com/harrison/maestro/internal/models"
)

// NewConfidenceCommand creates the confidence command
func NewConfidenceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confidence",
		Short: "Score deployment confidence for the current moment",
		Long: `Score deployment confidence using the weighted factor model.

The score combines code quality signals, test coverage, historical success
from the deployment history database, deployment timing, and rollback
capability into a single confidence value with a recommendation.

Examples:
  # Score a deployment right now
  maestro confidence

  # Score with rollback disabled
  maestro confidence --rollback disabled`,
		Args: cobra.NoArgs,
		RunE: confidenceCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .maestro/config.yaml)")
	cmd.Flags().String("rollback", "enabled", "Rollback on failure: enabled or disabled")

	return cmd
}

// confidenceCommand implements the confidence command logic
func confidenceCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rollbackFlag, _ := cmd.Flags().GetString("rollback")
	rollback, err := parseRollbackFlag(rollbackFlag)
	if err != nil {
		return err
	}

	deployCtx := models.Context{
		"rollback_enabled": rollback,
	}

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.DBPath)
		if err == nil {
			defer store.Close()
			rate, n, err := store.RecentSuccessRate(cmd.Context(), cfg.History.Window)
			if err == nil && n > 0 {
				deployCtx["recent_success_rate"] = rate
			}
		}
	}

	assessment := confidence.NewScorer().Calculate(deployCtx)

	out := cmd.OutOrStdout()
	fmt.Fprint(out, assessment.Meter())
	fmt.Fprintf(out, "\nOverall confidence: %.1f%%\n", assessment.OverallConfidence*100)
	fmt.Fprintf(out, "Recommendation: %s\n", assessment.Recommendation)
	if len(assessment.RiskAreas) > 0 {
		fmt.Fprintln(out, "\nRisk areas:")
		for _, risk := range assessment.RiskAreas {
			fmt.Fprintf(out, "  - %s\n", risk)
		}
	}
	return nil
}
