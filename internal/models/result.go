package models

import "time"

// Agent execution status values. Each agent moves Pending -> InProgress and
// terminates as Passed or Failed. Rollback is a deployment-level state
// reachable only from Failed when rollback is enabled.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPassed     Status = "passed"
	StatusFailed     Status = "failed"
	StatusRollback   Status = "rollback"
)

// Result captures the outcome of a single agent execution. Results are
// appended in execution order and never removed; rollback invokes the owning
// agent but leaves the Result in place.
type Result struct {
	// Agent is the name of the agent that produced this result
	Agent string

	// Status is the terminal state decided by the agent
	Status Status

	// StartTime and EndTime bound the execution
	StartTime time.Time
	EndTime   time.Time

	// Metrics holds named sub-check outcomes, agent-specific
	Metrics map[string]any

	// Errors and Warnings accumulate in the order findings were made
	Errors   []string
	Warnings []string

	// RollbackData is an opaque snapshot owned exclusively by the agent that
	// stored it, handed back verbatim on rollback
	RollbackData map[string]any
}

// NewResult starts an in-progress Result for the named agent.
func NewResult(agent string) *Result {
	return &Result{
		Agent:     agent,
		Status:    StatusInProgress,
		StartTime: time.Now(),
		Metrics:   make(map[string]any),
	}
}

// Fail marks the result failed and records the reason.
func (r *Result) Fail(reason string) {
	r.Status = StatusFailed
	r.Errors = append(r.Errors, reason)
}

// Warn records a non-critical finding without changing the terminal status.
func (r *Result) Warn(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// Duration returns the wall-clock execution time.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// CheckpointPreExecution is the only checkpoint state; checkpoints are
// recorded immediately before an agent executes.
const CheckpointPreExecution = "pre_execution"

// Checkpoint is an immutable audit record captured once per agent attempt.
// It carries a content hash of the shared context, not restorable state;
// restorable state lives in Result.RollbackData.
type Checkpoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Agent       string    `json:"agent"`
	ContextHash string    `json:"context_hash"`
	State       string    `json:"state"`
}
