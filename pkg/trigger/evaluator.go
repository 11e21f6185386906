// Package trigger bridges customer lifecycle events to workflow executions.
package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/salonkit/workflowd/pkg/events"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/orchestrator"
	"github.com/salonkit/workflowd/pkg/otelhelper"
	"github.com/salonkit/workflowd/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Narrower is implemented by targeting.Resolver.
type Narrower interface {
	FilterByTriggerConditions(
		ctx context.Context,
		candidates []string,
		workflow *models.Workflow,
		event models.LifecycleEvent,
	) ([]string, error)
}

// Runner is implemented by orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, workflow *models.Workflow, opts orchestrator.RunOptions) (*models.WorkflowExecution, error)
}

type Evaluator struct {
	workflows persistence.WorkflowRepository
	narrower  Narrower
	runner    Runner
	tracer    trace.Tracer
	logger    *slog.Logger
	customers *keyedMutex
}

func NewEvaluator(
	workflows persistence.WorkflowRepository,
	narrower Narrower,
	runner Runner,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Evaluator {
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	return &Evaluator{
		workflows: workflows,
		narrower:  narrower,
		runner:    runner,
		tracer:    tracer,
		logger:    logger.With("module", "trigger_evaluator"),
		customers: newKeyedMutex(),
	}
}

func (e *Evaluator) OnCustomerVisit(ctx context.Context, visit models.CustomerVisit) ([]*models.WorkflowExecution, error) {
	return e.Evaluate(ctx, visit)
}

func (e *Evaluator) OnCustomerRegistration(ctx context.Context, registration models.CustomerRegistration) ([]*models.WorkflowExecution, error) {
	return e.Evaluate(ctx, registration)
}

func (e *Evaluator) OnPaymentCompleted(ctx context.Context, payment models.PaymentCompleted) ([]*models.WorkflowExecution, error) {
	return e.Evaluate(ctx, payment)
}

// Evaluate runs every active EVENT workflow of the shop whose trigger matches event, as a
// single-customer execution. Events of one customer are evaluated one at a time. A failing
// workflow is logged and skipped; only the workflow lookup error is returned.
func (e *Evaluator) Evaluate(ctx context.Context, event models.LifecycleEvent) ([]*models.WorkflowExecution, error) {
	shopID, customerID := event.EventShopID(), event.EventCustomerID()

	unlock := e.customers.Lock(events.CustomerKey(shopID, customerID))
	defer unlock()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "trigger.evaluate",
		attribute.String(otelhelper.ShopIDKey, shopID),
		attribute.String(otelhelper.CustomerIDKey, customerID),
		attribute.String(otelhelper.TriggerTypeKey, event.EventTriggerType()),
	)
	defer span.End()

	logger := e.logger.With("shop_id", shopID, "customer_id", customerID, "trigger_type", event.EventTriggerType())

	workflows, err := e.workflows.ListActiveByTrigger(ctx, shopID, models.TriggerCategoryEvent, event.EventTriggerType())
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to find workflows for %s: %w", event.EventTriggerType(), err)
	}

	logger.DebugContext(ctx, "Evaluating event", "workflows", len(workflows))

	executions := make([]*models.WorkflowExecution, 0, len(workflows))

	for _, workflow := range workflows {
		execution, err := e.evaluateWorkflow(ctx, workflow, event, customerID)
		if err != nil {
			logger.ErrorContext(ctx, "Workflow evaluation failed", "workflow_id", workflow.ID, "error", err)

			continue
		}

		if execution != nil {
			executions = append(executions, execution)
		}
	}

	return executions, nil
}

func (e *Evaluator) evaluateWorkflow(
	ctx context.Context,
	workflow *models.Workflow,
	event models.LifecycleEvent,
	customerID string,
) (*models.WorkflowExecution, error) {
	if !workflow.IsRunnable() {
		return nil, nil
	}

	targets, err := e.narrower.FilterByTriggerConditions(ctx, []string{customerID}, workflow, event)
	if err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		e.logger.DebugContext(ctx, "Customer not targeted", "workflow_id", workflow.ID, "customer_id", customerID)

		return nil, nil
	}

	return e.runner.Run(ctx, workflow, orchestrator.RunOptions{
		Source:   models.ExecutionSourceEvent,
		Narrowed: true,
		Targets:  targets,
	})
}
