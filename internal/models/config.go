package models

import "fmt"

// ValidationMode selects how agent readiness is verified before execution.
type ValidationMode string

const (
	ValidationAutomated ValidationMode = "automated"
	ValidationManual    ValidationMode = "manual"
	ValidationHybrid    ValidationMode = "hybrid"
)

// UnrankedPriority is the rank assigned to categories missing from the
// priority chain; they sort after every ranked category.
const UnrankedPriority = 999

// Defaults applied by NewDeploymentConfig.
const (
	DefaultMaxRetries     = 0
	DefaultTimeoutSeconds = 300
)

// DeploymentConfig declares what a deployment run should execute and how.
type DeploymentConfig struct {
	// Agents lists agent names in request order; execution order comes from
	// the priority chain, not this slice.
	Agents []string

	// PriorityChain maps agent categories to ranks; lower runs first.
	PriorityChain map[string]int

	ValidationMode  ValidationMode
	RollbackEnabled bool

	// MaxRetries is the number of additional in-place attempts after a
	// failed execution.
	MaxRetries int

	// TimeoutSeconds bounds each agent execution; zero disables the bound.
	TimeoutSeconds int

	// ParallelExecution is accepted but has no effect; execution is
	// sequential.
	ParallelExecution bool
}

// DefaultPriorityChain returns the standard category ranking.
func DefaultPriorityChain() map[string]int {
	return map[string]int{
		"security":     1,
		"performance":  2,
		"testing":      3,
		"architecture": 4,
	}
}

// NewDeploymentConfig builds a validated configuration. A nil or empty chain
// selects the default priority chain.
func NewDeploymentConfig(agents []string, chain map[string]int, mode ValidationMode, rollbackEnabled bool) (*DeploymentConfig, error) {
	if len(chain) == 0 {
		chain = DefaultPriorityChain()
	}

	cfg := &DeploymentConfig{
		Agents:          agents,
		PriorityChain:   chain,
		ValidationMode:  mode,
		RollbackEnabled: rollbackEnabled,
		MaxRetries:      DefaultMaxRetries,
		TimeoutSeconds:  DefaultTimeoutSeconds,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration preconditions.
func (c *DeploymentConfig) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent must be specified")
	}

	switch c.ValidationMode {
	case ValidationAutomated, ValidationManual, ValidationHybrid:
	default:
		return fmt.Errorf("invalid validation mode %q: must be one of automated, manual, hybrid", c.ValidationMode)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative: %d", c.MaxRetries)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout seconds cannot be negative: %d", c.TimeoutSeconds)
	}

	return nil
}

// PriorityOf returns the rank for a category, or UnrankedPriority when the
// category is not in the chain.
func (c *DeploymentConfig) PriorityOf(category string) int {
	if rank, ok := c.PriorityChain[category]; ok {
		return rank
	}
	return UnrankedPriority
}
