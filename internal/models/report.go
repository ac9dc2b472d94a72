package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Deployment-level status values carried by the Report.
const (
	DeploymentSuccess    = "success"
	DeploymentFailed     = "failed"
	DeploymentRolledBack = "rolled_back"
)

// AgentSummary is the per-agent slice of the final report.
type AgentSummary struct {
	Agent           string         `json:"agent"`
	Status          Status         `json:"status"`
	DurationSeconds float64        `json:"duration_seconds"`
	Metrics         map[string]any `json:"metrics"`
	Errors          []string       `json:"errors"`
	Warnings        []string       `json:"warnings"`
}

// ConfigSummary echoes the effective configuration into the report.
type ConfigSummary struct {
	Agents          []string       `json:"agents"`
	ValidationMode  ValidationMode `json:"validation_mode"`
	RollbackEnabled bool           `json:"rollback_enabled"`
}

// MetricsSummary aggregates per-agent outcomes.
type MetricsSummary struct {
	SuccessRate      float64 `json:"success_rate"`
	TotalAgents      int     `json:"total_agents"`
	SuccessfulAgents int     `json:"successful_agents"`
}

// RollbackEntry records one rollback invocation during the reverse unwind.
type RollbackEntry struct {
	Agent   string `json:"agent"`
	Success bool   `json:"success"`
}

// Report is the single auditable record of a deployment run, persisted as
// JSON by the report store. RunID is the orchestrator's unique identifier
// for the run; DeploymentID is the short timestamp-derived identifier used
// in report file names.
type Report struct {
	RunID           string          `json:"run_id"`
	DeploymentID    string          `json:"deployment_id"`
	Status          string          `json:"status"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	DurationSeconds float64         `json:"duration_seconds"`
	Configuration   ConfigSummary   `json:"configuration"`
	AgentResults    []AgentSummary  `json:"agent_results"`
	MetricsSummary  MetricsSummary  `json:"metrics_summary"`
	RollbackLog     []RollbackEntry `json:"rollback_log,omitempty"`
	Checkpoints     []Checkpoint    `json:"checkpoints"`
	Errors          []string        `json:"errors"`
	Warnings        []string        `json:"warnings"`
}

// DeploymentID derives the short run identifier from the start timestamp.
func DeploymentID(start time.Time) string {
	sum := sha256.Sum256([]byte(start.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:12]
}

// BuildReport assembles a Report from the run outcome. Results are folded in
// execution order; errors and warnings concatenate across agents in that same
// order. The success rate is successfulAgents / totalAgents * 100 over agents
// that reached a terminal state.
func BuildReport(cfg *DeploymentConfig, status string, start, end time.Time, results []*Result, rollbackLog []RollbackEntry, checkpoints []Checkpoint) *Report {
	report := &Report{
		DeploymentID:    DeploymentID(start),
		Status:          status,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: end.Sub(start).Seconds(),
		Configuration: ConfigSummary{
			Agents:          cfg.Agents,
			ValidationMode:  cfg.ValidationMode,
			RollbackEnabled: cfg.RollbackEnabled,
		},
		AgentResults: make([]AgentSummary, 0, len(results)),
		RollbackLog:  rollbackLog,
		Checkpoints:  checkpoints,
		Errors:       []string{},
		Warnings:     []string{},
	}

	successful := 0
	for _, r := range results {
		report.AgentResults = append(report.AgentResults, AgentSummary{
			Agent:           r.Agent,
			Status:          r.Status,
			DurationSeconds: r.Duration().Seconds(),
			Metrics:         r.Metrics,
			Errors:          r.Errors,
			Warnings:        r.Warnings,
		})
		report.Errors = append(report.Errors, r.Errors...)
		report.Warnings = append(report.Warnings, r.Warnings...)
		if r.Status == StatusPassed {
			successful++
		}
	}

	report.MetricsSummary = MetricsSummary{
		TotalAgents:      len(results),
		SuccessfulAgents: successful,
	}
	if len(results) > 0 {
		report.MetricsSummary.SuccessRate = float64(successful) / float64(len(results)) * 100
	}

	return report
}
