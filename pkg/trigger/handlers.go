package trigger

import (
	"context"
	"fmt"

	"github.com/salonkit/workflowd/pkg/eventbus"
	"github.com/salonkit/workflowd/pkg/events"
)

// Register subscribes the evaluator to the lifecycle events on the bus. A handler error
// leaves the message for redelivery.
func (e *Evaluator) Register(subscriber eventbus.EventSubscriber) error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.CustomerVisitedEvent: func(ctx context.Context, event eventbus.Event) error {
			visited, ok := event.(*events.CustomerVisited)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}

			_, err := e.OnCustomerVisit(ctx, visited.Visit)

			return err
		},
		events.CustomerRegisteredEvent: func(ctx context.Context, event eventbus.Event) error {
			registered, ok := event.(*events.CustomerRegistered)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}

			_, err := e.OnCustomerRegistration(ctx, registered.Registration)

			return err
		},
		events.PaymentCompletedEvent: func(ctx context.Context, event eventbus.Event) error {
			payment, ok := event.(*events.PaymentCompleted)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}

			_, err := e.OnPaymentCompleted(ctx, payment.Payment)

			return err
		},
	}

	for eventType, handler := range handlers {
		err := subscriber.Handle(eventType, handler)
		if err != nil {
			return fmt.Errorf("failed to register %s handler: %w", eventType, err)
		}
	}

	return nil
}
