package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/maestro/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(status string, rate float64) *DeploymentRecord {
	return &DeploymentRecord{
		RunID:           "run-" + status,
		DeploymentID:    "a1b2c3d4e5f6",
		Status:          status,
		Agents:          []string{"security-auditor", "test-automator"},
		SuccessRate:     rate,
		DurationSeconds: 42.5,
		StartedAt:       time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC),
	}
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := record(models.DeploymentSuccess, 100)
	rec.ReportPath = "deploy/reports/deployment_a1b2c3d4e5f6_20250314_103000.json"
	require.NoError(t, store.Record(ctx, rec))
	assert.NotZero(t, rec.ID)

	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, "run-success", got.RunID)
	assert.Equal(t, models.DeploymentSuccess, got.Status)
	assert.Equal(t, []string{"security-auditor", "test-automator"}, got.Agents)
	assert.Equal(t, 100.0, got.SuccessRate)
	assert.Equal(t, rec.ReportPath, got.ReportPath)
	assert.False(t, got.RecordedAt.IsZero())
}

func TestRecentOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, status := range []string{models.DeploymentFailed, models.DeploymentSuccess, models.DeploymentRolledBack} {
		rec := record(status, float64(i))
		require.NoError(t, store.Record(ctx, rec))
	}

	records, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.DeploymentRolledBack, records[0].Status, "most recent first")
	assert.Equal(t, models.DeploymentSuccess, records[1].Status)
}

func TestRecordReport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	report := &models.Report{
		DeploymentID:    "deadbeef0000",
		Status:          models.DeploymentRolledBack,
		StartTime:       start,
		EndTime:         start.Add(time.Minute),
		DurationSeconds: 60,
		AgentResults: []models.AgentSummary{
			{Agent: "security-auditor", Status: models.StatusPassed},
			{Agent: "test-automator", Status: models.StatusFailed},
		},
		MetricsSummary: models.MetricsSummary{SuccessRate: 50, TotalAgents: 2, SuccessfulAgents: 1},
		RollbackLog:    []models.RollbackEntry{{Agent: "security-auditor", Success: true}},
		Errors:         []string{"testing failed: 60.00% success rate"},
	}

	require.NoError(t, store.RecordReport(ctx, "run-123", report, "reports/x.json"))

	records, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, "run-123", got.RunID)
	assert.Equal(t, []string{"security-auditor", "test-automator"}, got.Agents)
	assert.Equal(t, 1, got.ErrorCount)
	assert.Equal(t, 1, got.RollbackCount)
	assert.Equal(t, 50.0, got.SuccessRate)
}

func TestRecordReportNil(t *testing.T) {
	store := newTestStore(t)
	err := store.RecordReport(context.Background(), "run-123", nil, "")
	assert.ErrorContains(t, err, "report cannot be nil")
}

func TestRecentSuccessRate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rate, total, err := store.RecentSuccessRate(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, total, "empty history")
	assert.Zero(t, rate)

	for _, status := range []string{
		models.DeploymentSuccess,
		models.DeploymentSuccess,
		models.DeploymentFailed,
		models.DeploymentSuccess,
	} {
		require.NoError(t, store.Record(ctx, record(status, 0)))
	}

	rate, total, err = store.RecentSuccessRate(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.InDelta(t, 0.75, rate, 1e-9)

	// Window of 2 only sees the two most recent rows (success, failed).
	rate, total, err = store.RecentSuccessRate(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.InDelta(t, 0.5, rate, 1e-9)
}

func TestInsights(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.Insights(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalDeployments)
	assert.Zero(t, empty.SuccessRate)

	for _, status := range []string{
		models.DeploymentSuccess,
		models.DeploymentFailed,
		models.DeploymentSuccess,
		models.DeploymentRolledBack,
	} {
		require.NoError(t, store.Record(ctx, record(status, 0)))
	}

	stats, err := store.Insights(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalDeployments)
	assert.Equal(t, 2, stats.Successes)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.Rollbacks)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 42.5, stats.AvgDurationSeconds, 1e-9)
	assert.Equal(t, models.DeploymentRolledBack, stats.LastStatus)
}

func TestFileBackedStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, path, store.Path())
	require.NoError(t, store.Record(context.Background(), record(models.DeploymentSuccess, 100)))
}
