package reportstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/maestro/internal/models"
)

func sampleReport(t *testing.T, id string) *models.Report {
	t.Helper()
	start := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	return &models.Report{
		DeploymentID:    id,
		Status:          models.DeploymentSuccess,
		StartTime:       start,
		EndTime:         start.Add(90 * time.Second),
		DurationSeconds: 90,
		MetricsSummary: models.MetricsSummary{
			SuccessRate:      100,
			TotalAgents:      2,
			SuccessfulAgents: 2,
		},
	}
}

func TestWriteCreatesRunFileAndLatest(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	path, err := store.Write(sampleReport(t, "a1b2c3d4e5f6"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "deployment_a1b2c3d4e5f6_20250314_103000.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded models.Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "a1b2c3d4e5f6", decoded.DeploymentID)
	assert.Equal(t, models.DeploymentSuccess, decoded.Status)

	latest, err := os.ReadFile(filepath.Join(dir, LatestName))
	require.NoError(t, err)
	assert.Equal(t, data, latest, "latest.json mirrors the per-run file")
}

func TestWriteIndentedJSON(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	path, err := store.Write(sampleReport(t, "deadbeef0000"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"deployment_id\"")
}

func TestWriteCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deploy", "reports")
	store := New(dir)

	_, err := store.Write(sampleReport(t, "cafebabe0000"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, LatestName))
	assert.NoError(t, err)
}

func TestWriteNilReport(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Write(nil)
	assert.ErrorContains(t, err, "report cannot be nil")
}

func TestLatestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	first := sampleReport(t, "111111111111")
	second := sampleReport(t, "222222222222")
	second.StartTime = second.StartTime.Add(time.Hour)
	second.Status = models.DeploymentRolledBack

	_, err := store.Write(first)
	require.NoError(t, err)
	_, err = store.Write(second)
	require.NoError(t, err)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "222222222222", latest.DeploymentID)
	assert.Equal(t, models.DeploymentRolledBack, latest.Status)
}

func TestLatestMissing(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Latest()
	assert.Error(t, err)
}

func TestDefaultDir(t *testing.T) {
	assert.Equal(t, DefaultDir, New("").Dir())
	assert.Equal(t, "custom", New("custom").Dir())
}

func TestConcurrentWritesKeepLatestIntact(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	var wg sync.WaitGroup
	ids := []string{"aaaaaaaaaaaa", "bbbbbbbbbbbb", "cccccccccccc", "dddddddddddd"}
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			r := sampleReport(t, id)
			r.StartTime = r.StartTime.Add(time.Duration(i) * time.Minute)
			_, err := store.Write(r)
			assert.NoError(t, err)
		}(i, id)
	}
	wg.Wait()

	// Whatever won, latest.json must be one complete report.
	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Contains(t, ids, latest.DeploymentID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var runFiles int
	for _, e := range entries {
		if e.Name() != LatestName && filepath.Ext(e.Name()) == ".json" {
			runFiles++
		}
	}
	assert.Equal(t, len(ids), runFiles)
}
