// Package agent defines the capability contract deployment agents expose to
// the orchestrator and provides the four standard agents: security audit,
// performance engineering, test automation, and database optimization.
//
// Agents never mutate the shared deployment context; they receive a snapshot,
// record sub-check outcomes into their Result metrics, and the orchestrator
// merges passed metrics back under the agent's namespaced key.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/maestro/internal/models"
)

// Standard agent names.
const (
	NameSecurityAuditor     = "security-auditor"
	NamePerformanceEngineer = "performance-engineer"
	NameTestAutomator       = "test-automator"
	NameDatabaseOptimizer   = "database-optimizer"
)

// Agent is the three-operation contract the orchestrator requires. New agent
// types plug in by registering a constructor under a unique name.
type Agent interface {
	// Name identifies the agent; it doubles as the metrics namespace.
	Name() string

	// Category is the explicit priority-chain key for this agent. It is a
	// declared field, not derived from the name.
	Category() string

	// Validate is a cheap readiness probe run before any agent executes.
	// It must not mutate shared state. A false return aborts the whole run.
	Validate() bool

	// Execute performs the agent's checks against a context snapshot and
	// returns a terminal Result. Internal faults never escape; they are
	// converted into a failed Result with the fault message recorded.
	Execute(ctx context.Context, deployCtx models.Context) *models.Result

	// Rollback is the best-effort inverse of Execute, handed back the
	// RollbackData the agent stored. The return reports whether the rollback
	// itself succeeded; failures are logged by the caller, never escalated.
	Rollback(ctx context.Context, rollbackData map[string]any) bool
}

// Logger is the minimal logging surface agents use. A nil logger silently
// discards messages.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// baseAgent carries the identity and logging shared by the standard agents.
type baseAgent struct {
	name     string
	category string
	log      Logger
}

func (b *baseAgent) Name() string     { return b.name }
func (b *baseAgent) Category() string { return b.category }

func (b *baseAgent) debugf(format string, args ...any) {
	if b.log != nil {
		b.log.Debugf(format, args...)
	}
}

func (b *baseAgent) infof(format string, args ...any) {
	if b.log != nil {
		b.log.Infof(format, args...)
	}
}

func (b *baseAgent) warnf(format string, args ...any) {
	if b.log != nil {
		b.log.Warnf(format, args...)
	}
}

func (b *baseAgent) errorf(format string, args ...any) {
	if b.log != nil {
		b.log.Errorf(format, args...)
	}
}

// finish returns the deferred epilogue for Execute: it converts panics into a
// failed Result and stamps the end time on every exit path.
func (b *baseAgent) finish(result *models.Result) func() {
	return func() {
		if r := recover(); r != nil {
			result.Fail(fmt.Sprintf("%s fault: %v", b.name, r))
			b.errorf("%s: execution fault: %v", b.name, r)
		}
		result.EndTime = time.Now()
	}
}

// contextCount reads a per-check integer from a nested context map such as
// security_findings["secrets_scan"]. Absent keys count as zero.
func contextCount(deployCtx models.Context, mapKey, check string) int {
	nested, ok := deployCtx[mapKey].(map[string]int)
	if ok {
		return nested[check]
	}
	// JSON round-trips deliver map[string]any with float64 values.
	loose, ok := deployCtx[mapKey].(map[string]any)
	if !ok {
		return 0
	}
	switch v := loose[check].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// contextFloatMap reads a map of named float values from the context,
// accepting both typed and JSON-decoded shapes. Returns nil when absent.
func contextFloatMap(deployCtx models.Context, key string) map[string]float64 {
	if typed, ok := deployCtx[key].(map[string]float64); ok {
		return typed
	}
	loose, ok := deployCtx[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(loose))
	for k, v := range loose {
		switch n := v.(type) {
		case float64:
			out[k] = n
		case int:
			out[k] = float64(n)
		}
	}
	return out
}
