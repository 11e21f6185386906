// Package events defines the messages exchanged over the event bus.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/salonkit/workflowd/pkg/models"
)

type EventType string

const Topic = "workflowd.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Lifecycle events published after the producing transaction commits.
	CustomerVisitedEvent    EventType = "customer.visited"
	CustomerRegisteredEvent EventType = "customer.registered"
	PaymentCompletedEvent   EventType = "payment.completed"

	WorkflowRunRequestedEvent EventType = "workflow.run.requested"
	ExecutionFinishedEvent    EventType = "workflow.execution.finished"
)

var ErrUnknownEventType = errors.New("unknown event type")

type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

type CustomerVisited struct {
	BaseEvent

	Visit models.CustomerVisit `json:"visit"`
}

func (e CustomerVisited) GetType() EventType {
	return CustomerVisitedEvent
}

type CustomerRegistered struct {
	BaseEvent

	Registration models.CustomerRegistration `json:"registration"`
}

func (e CustomerRegistered) GetType() EventType {
	return CustomerRegisteredEvent
}

type PaymentCompleted struct {
	BaseEvent

	Payment models.PaymentCompleted `json:"payment"`
}

func (e PaymentCompleted) GetType() EventType {
	return PaymentCompletedEvent
}

// WorkflowRunRequested asks a worker to run a workflow outside its trigger.
type WorkflowRunRequested struct {
	BaseEvent

	WorkflowID  string `json:"workflow_id"`
	ShopID      string `json:"shop_id"`
	RequestedBy string `json:"requested_by"`
}

func (e WorkflowRunRequested) GetType() EventType {
	return WorkflowRunRequestedEvent
}

func (e WorkflowRunRequested) Validate() error {
	if e.WorkflowID == "" {
		return errors.New("workflow_id is required")
	}

	if e.ShopID == "" {
		return errors.New("shop_id is required")
	}

	return nil
}

// ExecutionFinished announces a finalized execution to notification subscribers.
type ExecutionFinished struct {
	BaseEvent

	WorkflowTitle string                   `json:"workflow_title"`
	Execution     models.WorkflowExecution `json:"execution"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

// NewLifecycleEvent wraps a lifecycle fact in its bus event.
func NewLifecycleEvent(event models.LifecycleEvent) (Event, error) {
	switch e := event.(type) {
	case models.CustomerVisit:
		return CustomerVisited{BaseEvent: NewBaseEvent(CustomerVisitedEvent), Visit: e}, nil
	case models.CustomerRegistration:
		return CustomerRegistered{BaseEvent: NewBaseEvent(CustomerRegisteredEvent), Registration: e}, nil
	case models.PaymentCompleted:
		return PaymentCompleted{BaseEvent: NewBaseEvent(PaymentCompletedEvent), Payment: e}, nil
	default:
		return nil, fmt.Errorf("%w for %T", ErrUnknownEventType, event)
	}
}

// CustomerKey is the partition key that keeps one customer's events in order.
func CustomerKey(shopID, customerID string) string {
	return shopID + ":" + customerID
}

// Decode unmarshals payload into a pointer to the event struct registered for eventType.
func Decode(eventType EventType, payload []byte) (Event, error) {
	var event Event

	switch eventType {
	case CustomerVisitedEvent:
		event = &CustomerVisited{}
	case CustomerRegisteredEvent:
		event = &CustomerRegistered{}
	case PaymentCompletedEvent:
		event = &PaymentCompleted{}
	case WorkflowRunRequestedEvent:
		event = &WorkflowRunRequested{}
	case ExecutionFinishedEvent:
		event = &ExecutionFinished{}
	default:
		return nil, fmt.Errorf("%w '%s'", ErrUnknownEventType, eventType)
	}

	err := json.Unmarshal(payload, event)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return event, nil
}
