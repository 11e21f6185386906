// Package persistence provides the storage abstraction for workflows, executions and the outbox.
package persistence

import (
	"context"
	"time"

	"github.com/salonkit/workflowd/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	OutboxRepository() OutboxRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository is the Workflow Store. Lookups exclude soft-deleted rows.
type WorkflowRepository interface {
	// GetByID returns nil, nil when the workflow does not exist or was deleted.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)

	// Save creates or updates a workflow. On update the stored statistics and next
	// scheduled run are kept and copied back onto workflow.
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error

	// ExistsByTitleAndShopID checks title uniqueness among non-deleted workflows of a shop,
	// ignoring the workflow with excludeID.
	ExistsByTitleAndShopID(ctx context.Context, shopID, title, excludeID string) (bool, error)

	ListByShop(ctx context.Context, shopID string) ([]*models.Workflow, error)
	ListActiveByTrigger(ctx context.Context, shopID string, category models.TriggerCategory, triggerType string) ([]*models.Workflow, error)
	ListActiveByCategory(ctx context.Context, category models.TriggerCategory) ([]*models.Workflow, error)
	ListDueScheduled(ctx context.Context, now time.Time) ([]*models.Workflow, error)

	UpdateNextScheduledAt(ctx context.Context, id string, next *time.Time) error
}

// CreateExecutionOptions controls how a new execution is admitted.
type CreateExecutionOptions struct {
	// Exclusive refuses the execution with ErrExecutionInProgress when the workflow
	// already has a PENDING or RUNNING execution.
	Exclusive bool
}

// ExecutionRepository is the Execution Log Store.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution, opts CreateExecutionOptions) error
	MarkRunning(ctx context.Context, execution *models.WorkflowExecution) error

	// Heartbeat records that the execution is still being worked on. It fails with
	// ErrExecutionAlreadyFinalized once the execution is terminal.
	Heartbeat(ctx context.Context, id string, at time.Time) error

	// Finalize stores the terminal execution and folds it into the workflow statistics
	// in a single unit. Both writes are visible or neither is.
	Finalize(ctx context.Context, execution *models.WorkflowExecution) error

	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error)

	// ListStale returns unfinished executions whose last heartbeat, or start or creation
	// when none was recorded, is older than lastSeenBefore.
	ListStale(ctx context.Context, lastSeenBefore time.Time) ([]*models.WorkflowExecution, error)
	HasUnfinished(ctx context.Context, workflowID string) (bool, error)
	Summarize(ctx context.Context, shopID string, since time.Time) (models.ExecutionSummary, error)
}

// OutboxRepository stores lifecycle events awaiting relay to the event bus.
type OutboxRepository interface {
	Enqueue(ctx context.Context, message *models.OutboxMessage) error
	// FetchPending returns unpublished messages with fewer than maxAttempts failures, oldest
	// first. maxAttempts <= 0 disables the attempt filter.
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]*models.OutboxMessage, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}
