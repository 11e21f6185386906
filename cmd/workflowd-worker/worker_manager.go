package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/salonkit/workflowd/pkg/eventbus"
	"github.com/salonkit/workflowd/pkg/events"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/orchestrator"
	"github.com/salonkit/workflowd/pkg/persistence"
)

// Runner starts executions. The orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, workflow *models.Workflow, opts orchestrator.RunOptions) (*models.WorkflowExecution, error)
}

// Registrar attaches its event handlers to the bus. The trigger evaluator implements it.
type Registrar interface {
	Register(subscriber eventbus.EventSubscriber) error
}

// BackgroundTask runs until ctx ends. The outbox relay implements it.
type BackgroundTask interface {
	Run(ctx context.Context)
}

type WorkerManager struct {
	id        string
	logger    *slog.Logger
	workflows persistence.WorkflowRepository
	runner    Runner
	evaluator Registrar
	relay     BackgroundTask
	eventBus  eventbus.EventBus
}

func NewWorkerManager(
	id string,
	workflows persistence.WorkflowRepository,
	runner Runner,
	evaluator Registrar,
	relay BackgroundTask,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:        id,
		logger:    logger.With("module", "workflowd-worker", "worker_id", id),
		workflows: workflows,
		runner:    runner,
		evaluator: evaluator,
		relay:     relay,
		eventBus:  eventBus,
	}
}

// Start consumes lifecycle events and run requests and relays the outbox until ctx ends.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.evaluator.Register(w.eventBus)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.WorkflowRunRequestedEvent, w.handleRunRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	go w.relay.Run(ctx)

	w.logger.InfoContext(ctx, "Worker started successfully")

	<-ctx.Done()
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

// handleRunRequested runs a manually requested workflow. Requests that can never succeed
// are acknowledged; store failures are returned for redelivery.
func (w *WorkerManager) handleRunRequested(ctx context.Context, event eventbus.Event) error {
	request, ok := event.(*events.WorkflowRunRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for WorkflowRunRequested")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", request.WorkflowID,
		"request_id", request.ID,
		"requested_by", request.RequestedBy,
	)

	workflow, err := w.workflows.GetByID(ctx, request.WorkflowID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to fetch workflow by ID", "error", err)

		return err
	}

	if workflow == nil || workflow.ShopID != request.ShopID {
		logger.WarnContext(ctx, "Dropping run request for unknown workflow")

		return nil
	}

	execution, err := w.runner.Run(ctx, workflow, orchestrator.RunOptions{
		Source:    models.ExecutionSourceManual,
		Exclusive: true,
	})

	switch {
	case err == nil:
		logger.InfoContext(ctx, "Manual run finished", "execution_id", execution.ID, "status", execution.Status)

		return nil
	case persistence.IsExecutionInProgress(err):
		logger.InfoContext(ctx, "Skipping manual run, execution in progress")

		return nil
	case errors.Is(err, orchestrator.ErrWorkflowNotRunnable):
		logger.InfoContext(ctx, "Skipping manual run of inactive workflow")

		return nil
	default:
		logger.ErrorContext(ctx, "Failed to run workflow", "error", err)

		return err
	}
}
