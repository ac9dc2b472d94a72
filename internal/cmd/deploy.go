package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/maestro/internal/agent"
	"github.com/harrison/maestro/internal/confidence"
	"github.com/harrison/maestro/internal/config"
	"github.com/harrison/maestro/internal/executor"
	"github.com/harrison/maestro/internal/history"
	"github.com/harrison/maestro/internal/logger"
	"github.com/harrison/maestro/internal/manifest"
	"github.com/harrison/maestro/internal/models"
	"github.com/harrison/maestro/internal/reportstore"
)

// captureSink wraps a report sink and remembers the last written path so the
// command can print it and hand it to the history store.
type captureSink struct {
	inner executor.ReportSink
	path  string
}

func (s *captureSink) Write(report *models.Report) (string, error) {
	path, err := s.inner.Write(report)
	if err == nil {
		s.path = path
	}
	return path, err
}

// NewDeployCommand creates the deploy command
func NewDeployCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run a deployment through the agent chain",
		Long: `Run a deployment by executing the configured agents in priority order.

Agents are named on the command line or in a markdown manifest. Before any
agent executes, every agent must pass readiness validation. Each attempt is
checkpointed; on failure the completed agents are rolled back in reverse
order (unless rollback is disabled) and the run report records the unwind.

Configuration is loaded from .maestro/config.yaml if present.
CLI flags override configuration file and manifest settings.

Examples:
  # Run two agents with the default priority chain
  maestro deploy --agents security-auditor,test-automator

  # Explicit priority chain, highest first
  maestro deploy --agents security-auditor,database-optimizer \
    --priority "security>database"

  # Drive the run from a manifest
  maestro deploy --manifest deploy.md

  # Refuse to start below a confidence threshold
  maestro deploy --agents security-auditor --min-confidence 0.75

  # Keep going without rollback on failure
  maestro deploy --agents test-automator --rollback disabled`,
		Args: cobra.NoArgs,
		RunE: deployCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .maestro/config.yaml)")
	cmd.Flags().String("manifest", "", "Markdown deployment manifest")
	cmd.Flags().StringSlice("agents", nil, "Agents to run (comma-separated, default: all registered agents)")
	cmd.Flags().String("priority", "", `Priority chain, highest first (e.g. "security>performance>testing")`)
	cmd.Flags().String("validation", "", "Validation mode: automated, manual or hybrid")
	cmd.Flags().String("rollback", "", "Rollback on failure: enabled or disabled")
	cmd.Flags().Bool("parallel", false, "Accept parallel execution requests (execution stays sequential)")
	cmd.Flags().Bool("dry-run", false, "Mark the run as a dry run in the deployment context")
	cmd.Flags().Int("timeout", -1, "Per-agent timeout in seconds (0 disables the bound)")
	cmd.Flags().Int("max-retries", -1, "Additional attempts for a failed agent")
	cmd.Flags().String("report-dir", "", "Directory for deployment reports")
	cmd.Flags().Float64("min-confidence", -1, "Abort when the pre-flight confidence score is below this value")
	cmd.Flags().String("log-level", "", "Log verbosity: trace, debug, info, warn or error")

	return cmd
}

// deployCommand implements the deploy command logic
func deployCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	deployCfg, err := buildDeploymentConfig(cmd, cfg)
	if err != nil {
		return err
	}

	logLevel := cfg.LogLevel
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		logLevel = v
	}
	log := logger.NewConsoleLogger(os.Stdout, logLevel)

	reportDir := cfg.ReportDir
	if v, _ := cmd.Flags().GetString("report-dir"); v != "" {
		reportDir = v
	}
	sink := &captureSink{inner: reportstore.New(reportDir)}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	deployCtx := models.Context{
		"dry_run":          dryRun,
		"rollback_enabled": deployCfg.RollbackEnabled,
	}

	// History feeds the historical success factor and records the outcome.
	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History.DBPath)
		if err != nil {
			log.Warnf("history unavailable: %v", err)
		} else {
			defer store.Close()
			rate, n, err := store.RecentSuccessRate(cmd.Context(), cfg.History.Window)
			if err != nil {
				log.Warnf("history query failed: %v", err)
			} else if n > 0 {
				deployCtx["recent_success_rate"] = rate
			}
		}
	}

	minConfidence := cfg.MinConfidence
	if v, _ := cmd.Flags().GetFloat64("min-confidence"); cmd.Flags().Changed("min-confidence") {
		minConfidence = v
	}
	if minConfidence > 0 {
		assessment := confidence.NewScorer().Calculate(deployCtx)
		log.Infof("pre-flight confidence %.2f (%s)", assessment.OverallConfidence, assessment.Recommendation)
		for _, risk := range assessment.RiskAreas {
			log.Warnf("%s", risk)
		}
		if assessment.OverallConfidence < minConfidence {
			return fmt.Errorf("confidence %.2f below threshold %.2f: %s",
				assessment.OverallConfidence, minConfidence, assessment.Recommendation)
		}
	}

	orch, err := executor.New(deployCfg, agent.Builtin(), log, sink)
	if err != nil {
		return err
	}

	report, err := orch.Run(cmd.Context(), deployCtx)
	if err != nil {
		return err
	}

	if store != nil {
		if err := store.RecordReport(cmd.Context(), report.RunID, report, sink.path); err != nil {
			log.Warnf("failed to record deployment history: %v", err)
		}
	}

	if sink.path != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", sink.path)
	}

	if report.Status == models.DeploymentFailed {
		return fmt.Errorf("deployment %s failed", report.DeploymentID)
	}
	return nil
}

// loadConfig loads the maestro config honoring the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildDeploymentConfig resolves the deployment configuration from, in
// increasing precedence: config file defaults, the manifest, CLI flags.
func buildDeploymentConfig(cmd *cobra.Command, cfg *config.Config) (*models.DeploymentConfig, error) {
	var agents []string
	var chain map[string]int
	mode := models.ValidationMode(cfg.ValidationMode)
	rollback := cfg.RollbackEnabled
	maxRetries := cfg.MaxRetries
	timeout := cfg.TimeoutSeconds
	parallel := false

	if manifestPath, _ := cmd.Flags().GetString("manifest"); manifestPath != "" {
		m, err := manifest.NewParser().ParseFile(manifestPath)
		if err != nil {
			return nil, err
		}
		agents = m.Agents
		chain = m.PriorityChain
		mode = m.ValidationMode
		rollback = m.RollbackEnabled
		if m.MaxRetries > 0 {
			maxRetries = m.MaxRetries
		}
		if m.TimeoutSeconds > 0 {
			timeout = m.TimeoutSeconds
		}
		parallel = m.Parallel
	}

	if v, _ := cmd.Flags().GetStringSlice("agents"); len(v) > 0 {
		agents = v
	}
	if len(agents) == 0 {
		agents = agent.Builtin().Names()
	}
	if v, _ := cmd.Flags().GetString("priority"); v != "" {
		parsed, err := parsePriorityChain(v)
		if err != nil {
			return nil, err
		}
		chain = parsed
	}
	if v, _ := cmd.Flags().GetString("validation"); v != "" {
		mode = models.ValidationMode(v)
	}
	if v, _ := cmd.Flags().GetString("rollback"); v != "" {
		parsed, err := parseRollbackFlag(v)
		if err != nil {
			return nil, err
		}
		rollback = parsed
	}
	if cmd.Flags().Changed("max-retries") {
		maxRetries, _ = cmd.Flags().GetInt("max-retries")
	}
	if cmd.Flags().Changed("timeout") {
		timeout, _ = cmd.Flags().GetInt("timeout")
	}
	if v, _ := cmd.Flags().GetBool("parallel"); v {
		parallel = true
	}

	deployCfg, err := models.NewDeploymentConfig(agents, chain, mode, rollback)
	if err != nil {
		return nil, err
	}
	deployCfg.MaxRetries = maxRetries
	deployCfg.TimeoutSeconds = timeout
	deployCfg.ParallelExecution = parallel
	if err := deployCfg.Validate(); err != nil {
		return nil, err
	}
	return deployCfg, nil
}

// parsePriorityChain parses "security>performance>testing" into ranks,
// highest priority first.
func parsePriorityChain(s string) (map[string]int, error) {
	chain := make(map[string]int)
	rank := 1
	for _, part := range strings.Split(s, ">") {
		category := strings.TrimSpace(part)
		if category == "" {
			continue
		}
		if _, dup := chain[category]; dup {
			return nil, fmt.Errorf("duplicate category %q in priority chain", category)
		}
		chain[category] = rank
		rank++
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("priority chain is empty")
	}
	return chain, nil
}

// parseRollbackFlag parses the enabled/disabled rollback flag value.
func parseRollbackFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enabled", "on", "true":
		return true, nil
	case "disabled", "off", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid rollback value %q: use enabled or disabled", s)
}
