// Package eventbus carries lifecycle events, run requests and execution notices between processes.
package eventbus

import (
	"context"

	"github.com/salonkit/workflowd/pkg/events"
)

type Event = events.Event

type EventPublisher interface {
	// Publish sends event. Events sharing a key are delivered in publish order.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event struct. Returning an error
// requests redelivery.
type EventHandler func(ctx context.Context, event Event) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
