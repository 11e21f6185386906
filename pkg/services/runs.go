package services

import (
	"context"
	"fmt"

	"github.com/salonkit/workflowd/pkg/eventbus"
	"github.com/salonkit/workflowd/pkg/events"
	"github.com/salonkit/workflowd/pkg/models"
)

// Ingestion publishes manual run requests and committed lifecycle events to the bus. The
// worker consumes them.
type Ingestion struct {
	workflows *Workflow
	publisher eventbus.EventPublisher
}

func NewIngestion(workflows *Workflow, publisher eventbus.EventPublisher) *Ingestion {
	return &Ingestion{workflows: workflows, publisher: publisher}
}

// RequestRun queues a manual run of an active workflow of the caller's shop.
func (i *Ingestion) RequestRun(ctx context.Context, caller Caller, id string) (*events.WorkflowRunRequested, error) {
	err := caller.validate()
	if err != nil {
		return nil, err
	}

	workflow, err := i.workflows.FetchByID(ctx, caller.ShopID, id)
	if err != nil {
		return nil, err
	}

	if !workflow.IsRunnable() {
		return nil, NewValidationError("RequestRun", "WORKFLOW_INACTIVE", "workflow is inactive", ErrInvalidRequest)
	}

	request := &events.WorkflowRunRequested{
		BaseEvent:   events.NewBaseEvent(events.WorkflowRunRequestedEvent),
		WorkflowID:  workflow.ID,
		ShopID:      workflow.ShopID,
		RequestedBy: caller.StaffID,
	}

	err = i.publisher.Publish(ctx, workflow.ID, request)
	if err != nil {
		return nil, fmt.Errorf("failed to publish run request: %w", err)
	}

	return request, nil
}

// PublishLifecycleEvent hands a committed lifecycle event to the bus, keyed by shop and
// customer so that one customer's events stay ordered.
func (i *Ingestion) PublishLifecycleEvent(ctx context.Context, event models.LifecycleEvent) error {
	busEvent, err := events.NewLifecycleEvent(event)
	if err != nil {
		return NewValidationError("PublishLifecycleEvent", "UNKNOWN_EVENT", err.Error(), ErrInvalidRequest)
	}

	err = i.publisher.Publish(ctx, events.CustomerKey(event.EventShopID(), event.EventCustomerID()), busEvent)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventTriggerType(), err)
	}

	return nil
}
