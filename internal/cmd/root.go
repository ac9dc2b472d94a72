package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for maestro
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maestro",
		Short: "Priority-driven deployment orchestration with checkpoints and rollback",
		Long: `Maestro runs a deployment as an ordered chain of specialist agents
(security audit, performance review, test automation, database optimization).

Agents execute in priority order with a checkpoint before each attempt.
When one fails, already-completed agents are rolled back in reverse order
and a full JSON report is written for the run.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewDeployCommand())
	cmd.AddCommand(NewConfidenceCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
