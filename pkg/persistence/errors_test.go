package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/salonkit/workflowd/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		executionErr := persistence.NewExecutionError("Create", "exec-1", "workflow-123", persistence.ErrExecutionInProgress)

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsExecutionInProgress(executionErr))
		assert.False(t, persistence.IsExecutionNotFound(executionErr))

		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
		assert.True(t, errors.Is(fmt.Errorf("scan: %w", executionErr), persistence.ErrExecutionInProgress))
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("UpdateNextScheduledAt", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "UpdateNextScheduledAt")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("execution error contains context", func(t *testing.T) {
		err := persistence.NewExecutionError("Finalize", "exec-9", "workflow-123", persistence.ErrExecutionAlreadyFinalized)

		assert.Contains(t, err.Error(), "Finalize")
		assert.Contains(t, err.Error(), "exec-9")
		assert.Contains(t, err.Error(), "execution already finalized")
		assert.True(t, persistence.IsExecutionAlreadyFinalized(err))
	})
}
