// Package orchestrator runs one workflow execution from admission to finalization.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/salonkit/workflowd/pkg/actions"
	"github.com/salonkit/workflowd/pkg/eventbus"
	"github.com/salonkit/workflowd/pkg/events"
	"github.com/salonkit/workflowd/pkg/metrics"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/otelhelper"
	"github.com/salonkit/workflowd/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrWorkflowNotRunnable = errors.New("workflow is inactive or deleted")

// DefaultHeartbeat must stay well below the scheduler's stale-after window.
const DefaultHeartbeat = time.Minute

// TargetResolver is implemented by targeting.Resolver.
type TargetResolver interface {
	ResolveTargets(ctx context.Context, workflow *models.Workflow) ([]string, error)
	FilterByTriggerConditions(
		ctx context.Context,
		candidates []string,
		workflow *models.Workflow,
		event models.LifecycleEvent,
	) ([]string, error)
}

// ActionExecutor is implemented by actions.Executor.
type ActionExecutor interface {
	ExecuteAction(
		ctx context.Context,
		workflow *models.Workflow,
		targets []string,
		execution *models.WorkflowExecution,
	) (actions.Result, error)
}

type RunOptions struct {
	Source models.ExecutionSource

	// Exclusive refuses the run with persistence.ErrExecutionInProgress while the
	// workflow has an unfinished execution.
	Exclusive bool

	// Narrowed marks Targets as final, skipping target resolution.
	Narrowed bool
	Targets  []string
}

type Orchestrator struct {
	executions persistence.ExecutionRepository
	resolver   TargetResolver
	executor   ActionExecutor
	publisher  eventbus.EventPublisher
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
	heartbeat  time.Duration
	now        func() time.Time
}

type Option func(*Orchestrator)

// WithPublisher announces every finalized execution on the event bus.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithHeartbeat sets how often a running execution refreshes its heartbeat.
func WithHeartbeat(interval time.Duration) Option {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.heartbeat = interval
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(
	executions persistence.ExecutionRepository,
	resolver TargetResolver,
	executor ActionExecutor,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		executions: executions,
		resolver:   resolver,
		executor:   executor,
		tracer:     otelhelper.NoopTracer(),
		logger:     logger.With("module", "orchestrator"),
		heartbeat:  DefaultHeartbeat,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Run admits, executes and finalizes one execution of workflow. Execution level failures
// are recorded on the returned execution, not returned as errors. An error means the
// execution was refused or could not be persisted.
func (o *Orchestrator) Run(ctx context.Context, workflow *models.Workflow, opts RunOptions) (*models.WorkflowExecution, error) {
	if !workflow.IsRunnable() {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotRunnable, workflow.ID)
	}

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.ShopIDKey, workflow.ShopID),
		attribute.String(otelhelper.TriggerTypeKey, workflow.Trigger.Type),
		attribute.String(otelhelper.ActionTypeKey, workflow.Action.Type),
		attribute.String(otelhelper.SourceKey, string(opts.Source)),
	)
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution id: %w", err)
	}

	execution := models.NewExecution(id.String(), workflow, opts.Source, o.now().UTC())

	err = o.executions.Create(ctx, execution, persistence.CreateExecutionOptions{Exclusive: opts.Exclusive})
	if err != nil {
		if !persistence.IsExecutionInProgress(err) {
			otelhelper.SetError(span, err)
		}

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	logger := o.logger.With("workflow_id", workflow.ID, "execution_id", execution.ID, "source", opts.Source)

	_ = execution.Start(o.now().UTC())

	err = o.executions.MarkRunning(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, o.finalizeWithError(ctx, logger, workflow, execution, fmt.Errorf("failed to mark execution running: %w", err))
	}

	logger.InfoContext(ctx, "Execution started")

	stopHeartbeat := o.keepAlive(ctx, logger, execution.ID)
	defer stopHeartbeat()

	targets := opts.Targets
	if !opts.Narrowed {
		targets, err = o.resolve(ctx, workflow)
		if err != nil {
			otelhelper.SetError(span, err)
			logger.WarnContext(ctx, "Target resolution failed", "error", err)
			stopHeartbeat()

			err = o.finalize(ctx, logger, workflow, execution, 0, 0, 0, err.Error())
			if err != nil {
				return nil, err
			}

			return execution, nil
		}
	}

	span.SetAttributes(attribute.Int(otelhelper.TargetCountKey, len(targets)))

	if len(targets) == 0 {
		stopHeartbeat()

		err = o.finalize(ctx, logger, workflow, execution, 0, 0, 0, "")
		if err != nil {
			return nil, err
		}

		return execution, nil
	}

	result, actionErr := o.executor.ExecuteAction(ctx, workflow, targets, execution)

	stopHeartbeat()

	summary := ""
	if actionErr != nil {
		otelhelper.SetError(span, actionErr)

		summary = actionErr.Error()
	}

	err = o.finalize(ctx, logger, workflow, execution, len(targets), result.SuccessCount, result.FailureCount, summary)
	if err != nil {
		return nil, err
	}

	return execution, nil
}

// keepAlive refreshes the execution heartbeat until the returned stop is called, so that
// stale recovery leaves long runs alone. stop is idempotent and waits for the last write.
func (o *Orchestrator) keepAlive(ctx context.Context, logger *slog.Logger, executionID string) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := o.executions.Heartbeat(ctx, executionID, o.now().UTC())
				if err == nil || errors.Is(err, context.Canceled) {
					continue
				}

				logger.WarnContext(ctx, "Failed to record execution heartbeat", "error", err)

				if persistence.IsExecutionAlreadyFinalized(err) {
					return
				}
			}
		}
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (o *Orchestrator) resolve(ctx context.Context, workflow *models.Workflow) ([]string, error) {
	base, err := o.resolver.ResolveTargets(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return o.resolver.FilterByTriggerConditions(ctx, base, workflow, nil)
}

// Abandon finalizes an execution that never finished as FAILED with reason.
func (o *Orchestrator) Abandon(ctx context.Context, execution *models.WorkflowExecution, reason string) error {
	logger := o.logger.With("workflow_id", execution.WorkflowID, "execution_id", execution.ID)

	err := execution.Finish(o.now().UTC(), execution.TargetCount, 0, execution.FailureCount, reason)
	if err != nil {
		return err
	}

	execution.Status = models.ExecutionStatusFailed

	err = o.executions.Finalize(context.WithoutCancel(ctx), execution)
	if err != nil {
		return fmt.Errorf("failed to abandon execution %s: %w", execution.ID, err)
	}

	logger.WarnContext(ctx, "Execution abandoned", "reason", reason, "created_at", execution.CreatedAt)
	o.metrics.ExecutionRecovered()
	o.announce(ctx, logger, "", execution)

	return nil
}

func (o *Orchestrator) finalizeWithError(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	cause error,
) error {
	err := o.finalize(ctx, logger, workflow, execution, 0, 0, 0, cause.Error())
	if err != nil {
		return errors.Join(cause, err)
	}

	return cause
}

// finalize writes the terminal row and the workflow statistics even when ctx is done,
// so an execution never stays RUNNING because its caller gave up.
func (o *Orchestrator) finalize(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	targets, success, failure int,
	summary string,
) error {
	err := execution.Finish(o.now().UTC(), targets, success, failure, summary)
	if err != nil {
		return err
	}

	err = o.executions.Finalize(context.WithoutCancel(ctx), execution)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to finalize execution", "error", err)

		return fmt.Errorf("failed to finalize execution %s: %w", execution.ID, err)
	}

	workflow.Stats.Record(execution)
	otelhelper.RecordOutcome(trace.SpanFromContext(ctx), string(execution.Status), execution.SuccessCount, execution.FailureCount)

	logger.InfoContext(ctx, "Execution finished",
		"status", execution.Status,
		"target_count", execution.TargetCount,
		"success_count", execution.SuccessCount,
		"failure_count", execution.FailureCount,
		"duration", execution.Duration(),
	)

	o.metrics.ExecutionFinished(string(execution.Status), string(execution.Source), execution.Duration())
	o.announce(ctx, logger, workflow.Title, execution)

	return nil
}

func (o *Orchestrator) announce(ctx context.Context, logger *slog.Logger, title string, execution *models.WorkflowExecution) {
	if o.publisher == nil {
		return
	}

	err := o.publisher.Publish(context.WithoutCancel(ctx), execution.ShopID, events.ExecutionFinished{
		BaseEvent:     events.NewBaseEvent(events.ExecutionFinishedEvent),
		WorkflowTitle: title,
		Execution:     *execution,
	})
	if err != nil {
		logger.WarnContext(ctx, "Failed to publish execution finished", "error", err)
	}
}
