// Package reportstore persists deployment reports as JSON files.
//
// Each run gets its own timestamped report file, and latest.json always
// points at the most recent run. Writes are atomic (temp file plus rename)
// and latest.json is guarded by a file lock so concurrent deployments from
// separate processes never interleave partial writes.
package reportstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/harrison/maestro/internal/models"
)

// DefaultDir is the report directory used when none is configured.
const DefaultDir = "deploy/reports"

// LatestName is the well-known filename of the most recent report.
const LatestName = "latest.json"

// fileStamp formats a report start time for per-run filenames.
const fileStamp = "20060102_150405"

// Store writes deployment reports under a base directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir. An empty dir selects DefaultDir.
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

// Dir returns the directory reports are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Write persists the report to its per-run file and refreshes latest.json.
// It returns the per-run report path.
func (s *Store) Write(report *models.Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("report cannot be nil")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(s.dir, s.runFileName(report))
	if err := atomicWrite(path, data); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}

	if err := s.writeLatest(data); err != nil {
		return "", err
	}

	return path, nil
}

// Latest reads the most recent report, if one exists.
func (s *Store) Latest() (*models.Report, error) {
	path := filepath.Join(s.dir, LatestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &report, nil
}

// runFileName builds the per-run filename: deployment_<id>_<stamp>.json.
func (s *Store) runFileName(report *models.Report) string {
	return fmt.Sprintf("deployment_%s_%s.json", report.DeploymentID, report.StartTime.Format(fileStamp))
}

// writeLatest refreshes latest.json under an exclusive file lock. The lock
// file lives next to latest.json so cross-process writers serialize on it.
func (s *Store) writeLatest(data []byte) error {
	latestPath := filepath.Join(s.dir, LatestName)

	lock := flock.New(latestPath + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", latestPath, err)
	}
	defer lock.Unlock()

	if err := atomicWrite(latestPath, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", latestPath, err)
	}
	return nil
}

// atomicWrite writes data via a temp file in the target directory followed
// by a rename, so readers never observe a partial report. The temp file is
// created in the same directory to keep the rename on one filesystem.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	tempFile = nil
	return nil
}
