// Package history persists deployment outcomes in SQLite so later runs can
// score themselves against the track record.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/maestro/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// DefaultPath is the history database location used when none is configured.
const DefaultPath = "deploy/history.db"

// DeploymentRecord is a single row of deployment history.
type DeploymentRecord struct {
	ID              int64
	RunID           string
	DeploymentID    string
	Status          string
	Agents          []string
	SuccessRate     float64
	DurationSeconds float64
	ErrorCount      int
	WarningCount    int
	RollbackCount   int
	ReportPath      string
	StartedAt       time.Time
	RecordedAt      time.Time
}

// Insights summarizes the stored deployment history.
type Insights struct {
	TotalDeployments   int
	Successes          int
	Failures           int
	Rollbacks          int
	SuccessRate        float64
	AvgDurationSeconds float64
	LastStatus         string
	LastStartedAt      time.Time
}

// Store manages the SQLite database for deployment history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a Store and initializes the database schema.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultPath
	}

	// In-memory databases have no parent directory to create.
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	return openAndInitStore(dbPath)
}

// openAndInitStore opens the database connection and initializes schema.
func openAndInitStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure SQLite for concurrent access with retry logic.
	// busy_timeout goes first so subsequent operations wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}

		// Only retry on "database is locked" errors
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}

		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// RecordReport folds a deployment report into a history row and stores it.
func (s *Store) RecordReport(ctx context.Context, runID string, report *models.Report, reportPath string) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	agents := make([]string, 0, len(report.AgentResults))
	for _, summary := range report.AgentResults {
		agents = append(agents, summary.Agent)
	}

	return s.Record(ctx, &DeploymentRecord{
		RunID:           runID,
		DeploymentID:    report.DeploymentID,
		Status:          report.Status,
		Agents:          agents,
		SuccessRate:     report.MetricsSummary.SuccessRate,
		DurationSeconds: report.DurationSeconds,
		ErrorCount:      len(report.Errors),
		WarningCount:    len(report.Warnings),
		RollbackCount:   len(report.RollbackLog),
		ReportPath:      reportPath,
		StartedAt:       report.StartTime,
	})
}

// Record inserts a deployment record.
func (s *Store) Record(ctx context.Context, rec *DeploymentRecord) error {
	agentsJSON := "[]"
	if len(rec.Agents) > 0 {
		data, err := json.Marshal(rec.Agents)
		if err != nil {
			return fmt.Errorf("marshal agents: %w", err)
		}
		agentsJSON = string(data)
	}

	query := `INSERT INTO deployments
		(run_id, deployment_id, status, agents, success_rate, duration_seconds, error_count, warning_count, rollback_count, report_path, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		rec.RunID,
		rec.DeploymentID,
		rec.Status,
		agentsJSON,
		rec.SuccessRate,
		rec.DurationSeconds,
		rec.ErrorCount,
		rec.WarningCount,
		rec.RollbackCount,
		rec.ReportPath,
		rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	rec.ID = id

	return nil
}

// Recent retrieves up to limit deployments, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*DeploymentRecord, error) {
	query := `SELECT id, run_id, deployment_id, status, agents, success_rate, duration_seconds, error_count, warning_count, rollback_count, report_path, started_at, recorded_at
		FROM deployments
		ORDER BY id DESC`

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	defer rows.Close()

	var records []*DeploymentRecord
	for rows.Next() {
		rec := &DeploymentRecord{}
		var agentsJSON string
		var reportPath sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.DeploymentID,
			&rec.Status,
			&agentsJSON,
			&rec.SuccessRate,
			&rec.DurationSeconds,
			&rec.ErrorCount,
			&rec.WarningCount,
			&rec.RollbackCount,
			&reportPath,
			&rec.StartedAt,
			&rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan deployment row: %w", err)
		}

		if agentsJSON != "" {
			if err := json.Unmarshal([]byte(agentsJSON), &rec.Agents); err != nil {
				return nil, fmt.Errorf("unmarshal agents: %w", err)
			}
		}
		if reportPath.Valid {
			rec.ReportPath = reportPath.String
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployment rows: %w", err)
	}

	return records, nil
}

// RecentSuccessRate returns the fraction of the last n deployments that
// succeeded, along with how many rows were considered. A zero count means
// there is no history yet and the caller should fall back to its default.
func (s *Store) RecentSuccessRate(ctx context.Context, n int) (float64, int, error) {
	if n <= 0 {
		n = 10
	}

	query := `SELECT
		COUNT(*),
		COUNT(CASE WHEN status = ? THEN 1 END)
		FROM (SELECT status FROM deployments ORDER BY id DESC LIMIT ?)`

	var total, successes int
	err := s.db.QueryRowContext(ctx, query, models.DeploymentSuccess, n).Scan(&total, &successes)
	if err != nil {
		return 0, 0, fmt.Errorf("query recent success rate: %w", err)
	}

	if total == 0 {
		return 0, 0, nil
	}
	return float64(successes) / float64(total), total, nil
}

// Insights returns aggregate statistics over the full history.
func (s *Store) Insights(ctx context.Context) (*Insights, error) {
	query := `SELECT
		COUNT(*),
		COUNT(CASE WHEN status = ? THEN 1 END),
		COUNT(CASE WHEN status = ? THEN 1 END),
		COUNT(CASE WHEN status = ? THEN 1 END),
		AVG(duration_seconds)
		FROM deployments`

	stats := &Insights{}
	var avgDuration sql.NullFloat64

	err := s.db.QueryRowContext(ctx, query,
		models.DeploymentSuccess,
		models.DeploymentFailed,
		models.DeploymentRolledBack,
	).Scan(
		&stats.TotalDeployments,
		&stats.Successes,
		&stats.Failures,
		&stats.Rollbacks,
		&avgDuration,
	)
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}

	if avgDuration.Valid {
		stats.AvgDurationSeconds = avgDuration.Float64
	}
	if stats.TotalDeployments > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.TotalDeployments)
	}

	last, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(last) > 0 {
		stats.LastStatus = last[0].Status
		stats.LastStartedAt = last[0].StartedAt
	}

	return stats, nil
}
