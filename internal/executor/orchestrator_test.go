package executor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/maestro/internal/agent"
	"github.com/harrison/maestro/internal/models"
)

// mockAgent is a configurable test double for the agent contract.
type mockAgent struct {
	name          string
	category      string
	validateFunc  func() bool
	executeFunc   func(ctx context.Context, deployCtx models.Context) *models.Result
	rollbackFunc  func(rollbackData map[string]any) bool
	executions    int
	rollbackCalls []map[string]any
	seenContexts  []models.Context
}

func (m *mockAgent) Name() string     { return m.name }
func (m *mockAgent) Category() string { return m.category }

func (m *mockAgent) Validate() bool {
	if m.validateFunc != nil {
		return m.validateFunc()
	}
	return true
}

func (m *mockAgent) Execute(ctx context.Context, deployCtx models.Context) *models.Result {
	m.executions++
	m.seenContexts = append(m.seenContexts, deployCtx)
	if m.executeFunc != nil {
		return m.executeFunc(ctx, deployCtx)
	}
	return passedResult(m.name)
}

func (m *mockAgent) Rollback(ctx context.Context, rollbackData map[string]any) bool {
	m.rollbackCalls = append(m.rollbackCalls, rollbackData)
	if m.rollbackFunc != nil {
		return m.rollbackFunc(rollbackData)
	}
	return true
}

func passedResult(name string) *models.Result {
	r := models.NewResult(name)
	r.Status = models.StatusPassed
	r.EndTime = time.Now()
	return r
}

func failedResult(name, reason string) *models.Result {
	r := models.NewResult(name)
	r.Fail(reason)
	r.EndTime = time.Now()
	return r
}

// registryOf wires fixed mock instances into a fresh registry so tests can
// inspect the same instances the orchestrator ran.
func registryOf(agents ...*mockAgent) *agent.Registry {
	r := agent.NewRegistry()
	for _, m := range agents {
		m := m
		r.Register(m.name, func(log agent.Logger) agent.Agent { return m })
	}
	return r
}

func fourMocks() (*mockAgent, *mockAgent, *mockAgent, *mockAgent) {
	return &mockAgent{name: "security-auditor", category: "security"},
		&mockAgent{name: "performance-engineer", category: "performance"},
		&mockAgent{name: "test-automator", category: "testing"},
		&mockAgent{name: "database-optimizer", category: "database"}
}

func fullChain() map[string]int {
	return map[string]int{"security": 1, "performance": 2, "testing": 3, "database": 4}
}

func newConfig(t *testing.T, agents []string, rollback bool) *models.DeploymentConfig {
	t.Helper()
	cfg, err := models.NewDeploymentConfig(agents, fullChain(), models.ValidationAutomated, rollback)
	require.NoError(t, err)
	cfg.TimeoutSeconds = 0
	return cfg
}

func TestRunAllAgentsSucceed(t *testing.T) {
	sec, perf, tests, db := fourMocks()
	// Deliberately scrambled input order; the priority chain decides execution.
	cfg := newConfig(t, []string{"database-optimizer", "test-automator", "security-auditor", "performance-engineer"}, true)

	o, err := New(cfg, registryOf(sec, perf, tests, db), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, models.DeploymentSuccess, report.Status)
	assert.InEpsilon(t, 100.0, report.MetricsSummary.SuccessRate, 1e-9)

	order := make([]string, len(report.AgentResults))
	for i, s := range report.AgentResults {
		order[i] = s.Agent
	}
	assert.Equal(t, []string{"security-auditor", "performance-engineer", "test-automator", "database-optimizer"}, order)

	for _, m := range []*mockAgent{sec, perf, tests, db} {
		assert.Empty(t, m.rollbackCalls, "no rollback calls on a clean run")
		assert.Equal(t, 1, m.executions)
	}
}

func TestRunDuplicateAgentNamesRollBackOwnInstance(t *testing.T) {
	// Two instances of the same registered name; the second one fails, so
	// only the first (completed) instance must receive the rollback call.
	var instances []*mockAgent
	r := agent.NewRegistry()
	r.Register("security-auditor", func(log agent.Logger) agent.Agent {
		m := &mockAgent{name: "security-auditor", category: "security"}
		instances = append(instances, m)
		return m
	})
	cfg := newConfig(t, []string{"security-auditor", "security-auditor"}, true)

	o, err := New(cfg, r, nil, nil)
	require.NoError(t, err)
	require.Len(t, instances, 2)

	instances[1].executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		return failedResult("security-auditor", "second pass found a critical issue")
	}

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	assert.Equal(t, models.DeploymentRolledBack, report.Status)
	assert.Equal(t, 1, instances[0].executions)
	assert.Equal(t, 1, instances[1].executions)
	assert.Len(t, instances[0].rollbackCalls, 1, "completed instance unwinds")
	assert.Empty(t, instances[1].rollbackCalls, "failed instance without rollback data is skipped")
}

func TestRunReportCarriesRunID(t *testing.T) {
	sec := &mockAgent{name: "security-auditor", category: "security"}
	cfg := newConfig(t, []string{"security-auditor"}, true)

	o, err := New(cfg, registryOf(sec), nil, nil)
	require.NoError(t, err)

	first, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)
	second, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	_, err = uuid.Parse(first.RunID)
	require.NoError(t, err, "run id must be a parseable UUID")
	assert.NotEqual(t, first.RunID, second.RunID, "each run gets its own id")
	assert.NotEqual(t, first.RunID, first.DeploymentID)
}

func TestRunThirdAgentFailsWithRollback(t *testing.T) {
	sec, perf, tests, db := fourMocks()
	tests.executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		return failedResult("test-automator", "testing failed: 60.00% success rate")
	}
	cfg := newConfig(t, []string{"security-auditor", "performance-engineer", "test-automator", "database-optimizer"}, true)

	o, err := New(cfg, registryOf(sec, perf, tests, db), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	assert.Equal(t, models.DeploymentRolledBack, report.Status)
	require.Len(t, report.AgentResults, 3, "no agent runs after a failure")
	assert.Equal(t, 0, db.executions, "lower-priority agent must never start")

	// Reverse completion order, excluding the failed agent (no rollback data).
	require.Len(t, report.RollbackLog, 2)
	assert.Equal(t, "performance-engineer", report.RollbackLog[0].Agent)
	assert.Equal(t, "security-auditor", report.RollbackLog[1].Agent)
	assert.Empty(t, tests.rollbackCalls)
}

func TestRunFailedAgentWithRollbackDataParticipates(t *testing.T) {
	sec, perf, tests, db := fourMocks()
	db.executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		r := failedResult("database-optimizer", "constraint validation failed")
		r.RollbackData = map[string]any{"initial_state": map[string]float64{"query_time_avg_ms": 50}}
		return r
	}
	cfg := newConfig(t, []string{"security-auditor", "performance-engineer", "test-automator", "database-optimizer"}, true)

	o, err := New(cfg, registryOf(sec, perf, tests, db), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	require.Len(t, report.RollbackLog, 4, "failed agent with partial rollback data unwinds too")
	assert.Equal(t, "database-optimizer", report.RollbackLog[0].Agent)
	require.Len(t, db.rollbackCalls, 1)
	assert.Contains(t, db.rollbackCalls[0], "initial_state")
}

func TestRunFailureWithRollbackDisabled(t *testing.T) {
	sec, perf, tests, db := fourMocks()
	perf.executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		return failedResult("performance-engineer", "benchmark fault")
	}
	cfg := newConfig(t, []string{"security-auditor", "performance-engineer", "test-automator", "database-optimizer"}, false)

	o, err := New(cfg, registryOf(sec, perf, tests, db), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	assert.Equal(t, models.DeploymentFailed, report.Status)
	assert.Empty(t, report.RollbackLog)
	for _, m := range []*mockAgent{sec, perf, tests, db} {
		assert.Empty(t, m.rollbackCalls)
	}
}

func TestRunReadinessFailureAbortsBeforeExecution(t *testing.T) {
	sec, perf, tests, db := fourMocks()
	db.validateFunc = func() bool { return false }
	cfg := newConfig(t, []string{"security-auditor", "performance-engineer", "test-automator", "database-optimizer"}, true)

	o, err := New(cfg, registryOf(sec, perf, tests, db), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	assert.Nil(t, report)

	var readinessErr *ReadinessError
	require.ErrorAs(t, err, &readinessErr)
	assert.Equal(t, "database-optimizer", readinessErr.Agent)

	for _, m := range []*mockAgent{sec, perf, tests, db} {
		assert.Equal(t, 0, m.executions, "readiness failure is fatal for the whole run")
	}
}

func TestRunUnknownAgentsSkipped(t *testing.T) {
	sec, _, _, _ := fourMocks()
	cfg := newConfig(t, []string{"security-auditor", "chaos-monkey"}, true)

	o, err := New(cfg, registryOf(sec), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	assert.Equal(t, models.DeploymentSuccess, report.Status)
	require.Len(t, report.AgentResults, 1)
	assert.Equal(t, "security-auditor", report.AgentResults[0].Agent)
}

func TestRunContextMergeVisibleToLaterAgents(t *testing.T) {
	sec, perf, _, _ := fourMocks()
	sec.executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		r := passedResult("security-auditor")
		r.Metrics["secrets_scan"] = "clean"
		return r
	}

	var sawEarlier bool
	perf.executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		_, sawEarlier = deployCtx[models.ResultsKey("security-auditor")]
		// Agents receive snapshots; writes here must not reach the live context.
		deployCtx["rogue_write"] = true
		return passedResult("performance-engineer")
	}

	cfg := newConfig(t, []string{"security-auditor", "performance-engineer"}, true)
	o, err := New(cfg, registryOf(sec, perf), nil, nil)
	require.NoError(t, err)

	deployCtx := models.Context{"environment": "staging"}
	_, err = o.Run(context.Background(), deployCtx)
	require.NoError(t, err)

	assert.True(t, sawEarlier, "later agents must see earlier agents' published metrics")
	_, leaked := deployCtx["rogue_write"]
	assert.False(t, leaked, "agent writes must be confined to the snapshot")

	merged, ok := deployCtx[models.ResultsKey("security-auditor")].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "clean", merged["secrets_scan"])
}

func TestRunCheckpointPerAgent(t *testing.T) {
	sec, perf, _, _ := fourMocks()
	cfg := newConfig(t, []string{"security-auditor", "performance-engineer"}, true)

	o, err := New(cfg, registryOf(sec, perf), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{"environment": "staging"})
	require.NoError(t, err)

	require.Len(t, report.Checkpoints, 2)
	assert.Equal(t, "security-auditor", report.Checkpoints[0].Agent)
	assert.Equal(t, models.CheckpointPreExecution, report.Checkpoints[0].State)
	assert.Len(t, report.Checkpoints[0].ContextHash, 64)

	// The context changes after the first merge, so the hashes differ.
	assert.NotEqual(t, report.Checkpoints[0].ContextHash, report.Checkpoints[1].ContextHash)
}

func TestRunRetriesInPlace(t *testing.T) {
	sec, _, _, _ := fourMocks()
	calls := 0
	sec.executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		calls++
		if calls < 3 {
			return failedResult("security-auditor", "transient scanner error")
		}
		return passedResult("security-auditor")
	}

	cfg := newConfig(t, []string{"security-auditor"}, true)
	cfg.MaxRetries = 2

	o, err := New(cfg, registryOf(sec), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	assert.Equal(t, models.DeploymentSuccess, report.Status)
	assert.Equal(t, 3, calls)
	assert.Len(t, report.Checkpoints, 3, "each attempt records a fresh checkpoint")
	require.Len(t, report.AgentResults, 1)
	assert.Equal(t, models.StatusPassed, report.AgentResults[0].Status)
}

func TestRunRetriesExhausted(t *testing.T) {
	sec, _, _, _ := fourMocks()
	sec.executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		return failedResult("security-auditor", "persistent failure")
	}

	cfg := newConfig(t, []string{"security-auditor"}, false)
	cfg.MaxRetries = 1

	o, err := New(cfg, registryOf(sec), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	assert.Equal(t, models.DeploymentFailed, report.Status)
	assert.Equal(t, 2, sec.executions)
	assert.Len(t, report.Checkpoints, 2)
}

func TestRunTimeoutFailsAgent(t *testing.T) {
	sec, perf, _, _ := fourMocks()
	sec.executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond) // keep hanging past the deadline
		return passedResult("security-auditor")
	}

	cfg := newConfig(t, []string{"security-auditor", "performance-engineer"}, true)
	cfg.TimeoutSeconds = 1

	o, err := New(cfg, registryOf(sec, perf), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	assert.Equal(t, models.DeploymentRolledBack, report.Status)
	require.Len(t, report.AgentResults, 1)
	assert.Equal(t, models.StatusFailed, report.AgentResults[0].Status)
	assert.Contains(t, report.AgentResults[0].Errors[0], "timed out")
	assert.Equal(t, 0, perf.executions)
}

func TestRunPanickingExecuteBecomesFailedResult(t *testing.T) {
	sec, _, _, _ := fourMocks()
	sec.executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		panic("scanner exploded")
	}

	cfg := newConfig(t, []string{"security-auditor"}, false)
	o, err := New(cfg, registryOf(sec), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	assert.Equal(t, models.DeploymentFailed, report.Status)
	require.Len(t, report.AgentResults, 1)
	assert.Contains(t, report.AgentResults[0].Errors[0], "scanner exploded")
}

func TestRunPanickingValidateIsTopLevelError(t *testing.T) {
	sec, _, _, _ := fourMocks()
	sec.validateFunc = func() bool { panic("probe exploded") }

	cfg := newConfig(t, []string{"security-auditor"}, true)
	o, err := New(cfg, registryOf(sec), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	assert.Nil(t, report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
}

func TestRunRollbackFailureDoesNotAbortUnwind(t *testing.T) {
	sec, perf, tests, _ := fourMocks()
	perf.rollbackFunc = func(rollbackData map[string]any) bool { return false }
	tests.executeFunc = func(ctx context.Context, deployCtx models.Context) *models.Result {
		return failedResult("test-automator", "regression failures")
	}

	cfg := newConfig(t, []string{"security-auditor", "performance-engineer", "test-automator"}, true)
	o, err := New(cfg, registryOf(sec, perf, tests), nil, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), models.Context{})
	require.NoError(t, err)

	require.Len(t, report.RollbackLog, 2)
	assert.False(t, report.RollbackLog[0].Success, "performance rollback reported failed")
	assert.True(t, report.RollbackLog[1].Success, "security rollback still ran")
	require.Len(t, sec.rollbackCalls, 1)
}

func TestRunUnrankedCategorySortsLast(t *testing.T) {
	sec, _, _, _ := fourMocks()
	canary := &mockAgent{name: "canary-watcher", category: "canary"}

	cfg := newConfig(t, []string{"canary-watcher", "security-auditor"}, true)
	o, err := New(cfg, registryOf(sec, canary), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"security-auditor", "canary-watcher"}, o.ExecutionOrder())
}

func TestNewRejectsInvalidInputs(t *testing.T) {
	sec, _, _, _ := fourMocks()
	cfg := newConfig(t, []string{"security-auditor"}, true)

	_, err := New(nil, registryOf(sec), nil, nil)
	assert.ErrorContains(t, err, "config cannot be nil")

	_, err = New(cfg, nil, nil, nil)
	assert.ErrorContains(t, err, "registry cannot be nil")

	bad := *cfg
	bad.Agents = nil
	_, err = New(&bad, registryOf(sec), nil, nil)
	assert.ErrorContains(t, err, "at least one agent")
}
