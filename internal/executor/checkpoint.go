package executor

import (
	"time"

	"github.com/harrison/maestro/internal/models"
)

// RecordCheckpoint captures the audit record taken immediately before an
// agent attempt. The context hash is deterministic over the context content,
// so identical contexts checkpoint identically across runs. Checkpoints hold
// no restorable state; agents own that through Result.RollbackData.
func RecordCheckpoint(agentName string, deployCtx models.Context) models.Checkpoint {
	return models.Checkpoint{
		Timestamp:   time.Now(),
		Agent:       agentName,
		ContextHash: deployCtx.Hash(),
		State:       models.CheckpointPreExecution,
	}
}
