package notify

import (
	"context"
	"fmt"

	"github.com/salonkit/workflowd/pkg/eventbus"
	"github.com/salonkit/workflowd/pkg/events"
)

// Register feeds execution finished events from the bus into the hub.
func (h *Hub) Register(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.ExecutionFinishedEvent, func(_ context.Context, event eventbus.Event) error {
		finished, ok := event.(*events.ExecutionFinished)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		h.Publish(finished.Execution.ShopID, FromExecution(finished.WorkflowTitle, finished.Execution))

		return nil
	})
}
