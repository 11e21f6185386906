package file

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/persistence"
)

// ExecutionRepository handles execution log file operations.
type ExecutionRepository struct {
	store *jsonStore
	mu    *sync.Mutex
}

// Create stores a new PENDING execution, enforcing the single in-flight run guard when asked.
func (er *ExecutionRepository) Create(_ context.Context, execution *models.WorkflowExecution, opts persistence.CreateExecutionOptions) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	if execution.Status != models.ExecutionStatusPending {
		return persistence.NewExecutionError("Create", execution.ID, execution.WorkflowID, persistence.ErrInvalidExecutionTransition)
	}

	if opts.Exclusive {
		unfinished, err := er.unfinished(execution.WorkflowID)
		if err != nil {
			return err
		}

		if unfinished {
			return persistence.NewExecutionError("Create", execution.ID, execution.WorkflowID, persistence.ErrExecutionInProgress)
		}
	}

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	return er.store.write(executionsDir, execution.ID, execution)
}

// MarkRunning persists the PENDING to RUNNING transition.
func (er *ExecutionRepository) MarkRunning(_ context.Context, execution *models.WorkflowExecution) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	stored, err := er.load(execution.ID)
	if err != nil {
		return err
	}

	if stored == nil {
		return persistence.NewExecutionError("MarkRunning", execution.ID, execution.WorkflowID, persistence.ErrExecutionNotFound)
	}

	if stored.Status != models.ExecutionStatusPending || execution.Status != models.ExecutionStatusRunning {
		return persistence.NewExecutionError("MarkRunning", execution.ID, execution.WorkflowID, persistence.ErrInvalidExecutionTransition)
	}

	stored.Status = execution.Status
	stored.StartedAt = execution.StartedAt
	stored.HeartbeatAt = execution.HeartbeatAt

	return er.store.write(executionsDir, stored.ID, stored)
}

func (er *ExecutionRepository) Heartbeat(_ context.Context, id string, at time.Time) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	stored, err := er.load(id)
	if err != nil {
		return err
	}

	if stored == nil {
		return persistence.NewExecutionError("Heartbeat", id, "", persistence.ErrExecutionNotFound)
	}

	if stored.Status.IsTerminal() {
		return persistence.NewExecutionError("Heartbeat", id, stored.WorkflowID, persistence.ErrExecutionAlreadyFinalized)
	}

	stored.HeartbeatAt = &at

	return er.store.write(executionsDir, stored.ID, stored)
}

// Finalize writes the terminal execution and then the workflow statistics under the shared
// mutex. When the statistics write fails the stored execution is put back so the run stays
// unfinished and can be finalized again.
func (er *ExecutionRepository) Finalize(_ context.Context, execution *models.WorkflowExecution) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	if !execution.Status.IsTerminal() {
		return persistence.NewExecutionError("Finalize", execution.ID, execution.WorkflowID, persistence.ErrInvalidExecutionTransition)
	}

	stored, err := er.load(execution.ID)
	if err != nil {
		return err
	}

	if stored == nil {
		return persistence.NewExecutionError("Finalize", execution.ID, execution.WorkflowID, persistence.ErrExecutionNotFound)
	}

	if stored.Status.IsTerminal() {
		return persistence.NewExecutionError("Finalize", execution.ID, execution.WorkflowID, persistence.ErrExecutionAlreadyFinalized)
	}

	var workflow models.Workflow

	found, err := er.store.read(workflowsDir, execution.WorkflowID, &workflow)
	if err != nil {
		return err
	}

	if !found {
		return persistence.NewExecutionError("Finalize", execution.ID, execution.WorkflowID, persistence.ErrWorkflowNotFound)
	}

	err = er.store.write(executionsDir, execution.ID, execution)
	if err != nil {
		return fmt.Errorf("failed to store finalized execution: %w", err)
	}

	workflow.Stats.Record(execution)

	err = er.store.write(workflowsDir, workflow.ID, &workflow)
	if err != nil {
		restoreErr := er.store.write(executionsDir, stored.ID, stored)
		if restoreErr != nil {
			return errors.Join(fmt.Errorf("failed to update workflow statistics: %w", err), restoreErr)
		}

		return fmt.Errorf("failed to update workflow statistics: %w", err)
	}

	return nil
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	return er.load(id)
}

// ListByWorkflow returns the newest executions first.
func (er *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	executions, err := er.all(func(e *models.WorkflowExecution) bool { return e.WorkflowID == workflowID })
	if err != nil {
		return nil, err
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

// ListStale returns unfinished executions last seen before the cutoff.
func (er *ExecutionRepository) ListStale(_ context.Context, lastSeenBefore time.Time) ([]*models.WorkflowExecution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	executions, err := er.all(func(e *models.WorkflowExecution) bool {
		return !e.Status.IsTerminal() && e.LastSeen().Before(lastSeenBefore)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.Before(executions[j].CreatedAt)
	})

	return executions, nil
}

func (er *ExecutionRepository) HasUnfinished(_ context.Context, workflowID string) (bool, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	return er.unfinished(workflowID)
}

func (er *ExecutionRepository) Summarize(_ context.Context, shopID string, since time.Time) (models.ExecutionSummary, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	var summary models.ExecutionSummary

	executions, err := er.all(func(e *models.WorkflowExecution) bool {
		return e.ShopID == shopID && !e.CreatedAt.Before(since)
	})
	if err != nil {
		return summary, err
	}

	for _, execution := range executions {
		summary.Total++

		switch execution.Status {
		case models.ExecutionStatusSucceeded:
			summary.Succeeded++
		case models.ExecutionStatusPartiallyFailed:
			summary.PartiallyFailed++
		case models.ExecutionStatusFailed:
			summary.Failed++
		}
	}

	return summary, nil
}

func (er *ExecutionRepository) unfinished(workflowID string) (bool, error) {
	executions, err := er.all(func(e *models.WorkflowExecution) bool {
		return e.WorkflowID == workflowID && !e.Status.IsTerminal()
	})
	if err != nil {
		return false, err
	}

	return len(executions) > 0, nil
}

func (er *ExecutionRepository) load(id string) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	found, err := er.store.read(executionsDir, id, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch execution %s: %w", id, err)
	}

	if !found {
		return nil, nil
	}

	return &execution, nil
}

func (er *ExecutionRepository) all(keep func(*models.WorkflowExecution) bool) ([]*models.WorkflowExecution, error) {
	ids, err := er.store.ids(executionsDir)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		execution, err := er.load(id)
		if err != nil {
			return nil, err
		}

		if execution != nil && keep(execution) {
			executions = append(executions, execution)
		}
	}

	return executions, nil
}
