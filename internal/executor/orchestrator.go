// Package executor drives the deployment run loop: readiness validation,
// priority-ordered agent execution with per-attempt checkpoints, reverse-order
// rollback on failure, and report assembly.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/maestro/internal/agent"
	"github.com/harrison/maestro/internal/models"
)

// Logger receives orchestration progress. It extends the agent logging
// surface with run-level events.
type Logger interface {
	agent.Logger
	LogAgentStart(name string)
	LogAgentComplete(result *models.Result)
	LogAgentFail(result *models.Result)
	LogRollback(agentName string, success bool)
	LogSummary(report *models.Report)
}

// ReportSink persists the final report and returns the path it was written
// to. A nil sink disables persistence.
type ReportSink interface {
	Write(report *models.Report) (string, error)
}

// ReadinessError reports the fail-fast precondition: one agent failed its
// readiness probe, so nothing was executed.
type ReadinessError struct {
	Agent string
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("agent %s failed readiness validation; deployment aborted before execution", e.Agent)
}

// Orchestrator owns the agents for one deployment configuration and runs the
// deployment workflow. It is safe to call Run multiple times; each run
// carries its own results, checkpoints, and context.
type Orchestrator struct {
	cfg    *models.DeploymentConfig
	agents []agent.Agent
	logger Logger
	sink   ReportSink
}

// New instantiates the configured agents from the registry and returns an
// orchestrator ready to run. Unknown agent names are logged and skipped, not
// an error. The logger and sink are optional.
func New(cfg *models.DeploymentConfig, registry *agent.Registry, logger Logger, sink ReportSink) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("deployment config cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("agent registry cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deployment config: %w", err)
	}
	if logger == nil {
		logger = nopLogger{}
	}

	o := &Orchestrator{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
	}

	for _, name := range cfg.Agents {
		a, ok := registry.New(name, logger)
		if !ok {
			logger.Warnf("unknown agent: %s", name)
			continue
		}
		o.agents = append(o.agents, a)
		logger.Infof("initialized agent: %s", name)
	}

	return o, nil
}

// ExecutionOrder returns the agent names in the order they would execute.
func (o *Orchestrator) ExecutionOrder() []string {
	ordered := o.sortByPriority()
	names := make([]string, len(ordered))
	for i, a := range ordered {
		names[i] = a.Name()
	}
	return names
}

// Run executes the deployment workflow against the given context. The
// orchestrator owns deployCtx for the duration of the run: agents receive
// snapshots, and passed metrics are merged back under each agent's results
// key so later agents can read earlier outcomes.
//
// Run returns either a Report (success, failed, or rolled_back) or an error
// for precondition/readiness failures and unrecoverable faults. It never
// panics.
func (o *Orchestrator) Run(ctx context.Context, deployCtx models.Context) (report *models.Report, err error) {
	start := time.Now()
	runID := uuid.NewString()
	if deployCtx == nil {
		deployCtx = models.Context{}
	}

	var (
		results     []*models.Result
		executed    []agent.Agent
		checkpoints []models.Checkpoint
		rollbackLog []models.RollbackEntry
	)
	status := models.DeploymentSuccess

	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorf("critical deployment error: %v", r)
			if o.cfg.RollbackEnabled {
				o.rollbackCompleted(ctx, executed, results)
			}
			report = nil
			err = fmt.Errorf("deployment run %s aborted: %v", runID, r)
		}
	}()

	o.logger.Infof("starting deployment run %s", runID)
	o.logger.Infof("agents: %v, validation: %s, rollback: %t",
		o.ExecutionOrder(), o.cfg.ValidationMode, o.cfg.RollbackEnabled)

	// Every agent must pass its readiness probe before any agent executes.
	for _, a := range o.agents {
		if !a.Validate() {
			return nil, &ReadinessError{Agent: a.Name()}
		}
	}

	for _, a := range o.sortByPriority() {
		o.logger.LogAgentStart(a.Name())

		result, attempts := o.executeWithRetries(ctx, a, deployCtx)
		checkpoints = append(checkpoints, attempts...)
		results = append(results, result)
		executed = append(executed, a)

		if result.Status == models.StatusFailed {
			o.logger.LogAgentFail(result)
			status = models.DeploymentFailed
			if o.cfg.RollbackEnabled {
				rollbackLog = o.rollbackCompleted(ctx, executed, results)
				status = models.DeploymentRolledBack
			}
			break
		}

		o.logger.LogAgentComplete(result)
		deployCtx[models.ResultsKey(a.Name())] = result.Metrics
	}

	report = models.BuildReport(o.cfg, status, start, time.Now(), results, rollbackLog, checkpoints)
	report.RunID = runID

	if o.sink != nil {
		path, werr := o.sink.Write(report)
		if werr != nil {
			o.logger.Errorf("failed to persist report: %v", werr)
		} else {
			o.logger.Infof("report saved to: %s", path)
		}
	}

	o.logger.LogSummary(report)
	return report, nil
}

// sortByPriority orders agents by their category's rank in the priority
// chain. The sort is stable, so agents sharing a rank keep configuration
// order. Unranked categories sort last.
func (o *Orchestrator) sortByPriority() []agent.Agent {
	ordered := make([]agent.Agent, len(o.agents))
	copy(ordered, o.agents)
	sort.SliceStable(ordered, func(i, j int) bool {
		return o.cfg.PriorityOf(ordered[i].Category()) < o.cfg.PriorityOf(ordered[j].Category())
	})
	return ordered
}

// executeWithRetries runs one agent up to MaxRetries+1 times, recording a
// fresh checkpoint before every attempt. Only the final attempt's Result is
// reported.
func (o *Orchestrator) executeWithRetries(ctx context.Context, a agent.Agent, deployCtx models.Context) (*models.Result, []models.Checkpoint) {
	attempts := o.cfg.MaxRetries + 1

	var (
		checkpoints []models.Checkpoint
		result      *models.Result
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		cp := RecordCheckpoint(a.Name(), deployCtx)
		checkpoints = append(checkpoints, cp)
		o.logger.Debugf("checkpoint recorded for %s (context hash %s)", a.Name(), cp.ContextHash[:12])

		result = o.executeBounded(ctx, a, deployCtx.Snapshot())
		if result.Status != models.StatusFailed || attempt == attempts {
			break
		}
		o.logger.Warnf("agent %s failed attempt %d/%d, retrying", a.Name(), attempt, attempts)
	}

	return result, checkpoints
}

// executeBounded invokes Execute under the configured timeout. The agent runs
// against its own context snapshot, so an attempt abandoned at timeout cannot
// race the orchestrator's live context. A timeout or cancellation yields a
// failed Result feeding the normal rollback path.
func (o *Orchestrator) executeBounded(parent context.Context, a agent.Agent, snapshot models.Context) *models.Result {
	ctx := parent
	if o.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, time.Duration(o.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	started := time.Now()
	done := make(chan *models.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				res := models.NewResult(a.Name())
				res.Fail(fmt.Sprintf("%s fault: %v", a.Name(), r))
				res.EndTime = time.Now()
				done <- res
			}
		}()
		done <- a.Execute(ctx, snapshot)
	}()

	select {
	case result := <-done:
		if result == nil {
			result = models.NewResult(a.Name())
			result.Fail(fmt.Sprintf("%s returned no result", a.Name()))
			result.EndTime = time.Now()
		}
		return result
	case <-ctx.Done():
		result := models.NewResult(a.Name())
		result.StartTime = started
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Fail(fmt.Sprintf("execution timed out after %ds", o.cfg.TimeoutSeconds))
		} else {
			result.Fail(fmt.Sprintf("execution canceled: %v", ctx.Err()))
		}
		result.EndTime = time.Now()
		return result
	}
}

// rollbackCompleted unwinds results in strict reverse execution order. Later
// agents may have built on earlier agents' state, so undoing mirrors
// construction order in reverse, like unwinding a stack. The executed slice
// is index-aligned with results, so each rollback lands on the instance that
// produced the result even when one name runs more than once. The failed
// result itself participates only when it registered rollback data.
// Individual rollback failures are logged and never abort the unwind.
func (o *Orchestrator) rollbackCompleted(ctx context.Context, executed []agent.Agent, results []*models.Result) []models.RollbackEntry {
	o.logger.Warnf("initiating rollback procedure")

	var entries []models.RollbackEntry
	for i := len(results) - 1; i >= 0; i-- {
		result := results[i]
		if result.Status == models.StatusFailed && result.RollbackData == nil {
			continue
		}
		a := executed[i]

		o.logger.Infof("rolling back %s", result.Agent)
		success := o.rollbackOne(ctx, a, result.RollbackData)
		o.logger.LogRollback(result.Agent, success)
		entries = append(entries, models.RollbackEntry{Agent: result.Agent, Success: success})
	}

	o.logger.Infof("rollback procedure completed")
	return entries
}

// rollbackOne guards a single rollback call; a panicking rollback counts as
// a failed rollback.
func (o *Orchestrator) rollbackOne(ctx context.Context, a agent.Agent, rollbackData map[string]any) (success bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorf("rollback fault in %s: %v", a.Name(), r)
			success = false
		}
	}()
	return a.Rollback(ctx, rollbackData)
}

// nopLogger discards everything; used when no logger is supplied.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)             {}
func (nopLogger) Infof(string, ...any)              {}
func (nopLogger) Warnf(string, ...any)              {}
func (nopLogger) Errorf(string, ...any)             {}
func (nopLogger) LogAgentStart(string)              {}
func (nopLogger) LogAgentComplete(*models.Result)   {}
func (nopLogger) LogAgentFail(*models.Result)       {}
func (nopLogger) LogRollback(string, bool)          {}
func (nopLogger) LogSummary(*models.Report)         {}
