package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeploymentConfig(t *testing.T) {
	tests := []struct {
		name    string
		agents  []string
		chain   map[string]int
		mode    ValidationMode
		wantErr string
	}{
		{
			name:   "valid config with explicit chain",
			agents: []string{"security-auditor"},
			chain:  map[string]int{"security": 1},
			mode:   ValidationAutomated,
		},
		{
			name:   "valid config with default chain",
			agents: []string{"security-auditor", "test-automator"},
			mode:   ValidationHybrid,
		},
		{
			name:    "empty agent list",
			agents:  nil,
			mode:    ValidationAutomated,
			wantErr: "at least one agent",
		},
		{
			name:    "unknown validation mode",
			agents:  []string{"security-auditor"},
			mode:    ValidationMode("yolo"),
			wantErr: "invalid validation mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewDeploymentConfig(tt.agents, tt.chain, tt.mode, true)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			assert.True(t, cfg.RollbackEnabled)
			assert.NotEmpty(t, cfg.PriorityChain)
		})
	}
}

func TestDefaultPriorityChain(t *testing.T) {
	cfg, err := NewDeploymentConfig([]string{"security-auditor"}, nil, ValidationAutomated, true)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.PriorityOf("security"))
	assert.Equal(t, 2, cfg.PriorityOf("performance"))
	assert.Equal(t, 3, cfg.PriorityOf("testing"))
	assert.Equal(t, 4, cfg.PriorityOf("architecture"))
}

func TestPriorityOfUnknownCategory(t *testing.T) {
	cfg, err := NewDeploymentConfig([]string{"security-auditor"}, map[string]int{"security": 1}, ValidationAutomated, true)
	require.NoError(t, err)

	assert.Equal(t, UnrankedPriority, cfg.PriorityOf("chaos"))
}

func TestValidateBounds(t *testing.T) {
	cfg, err := NewDeploymentConfig([]string{"security-auditor"}, nil, ValidationManual, false)
	require.NoError(t, err)

	cfg.MaxRetries = -1
	assert.ErrorContains(t, cfg.Validate(), "max retries")

	cfg.MaxRetries = 0
	cfg.TimeoutSeconds = -5
	assert.ErrorContains(t, cfg.Validate(), "timeout seconds")
}
