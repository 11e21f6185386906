// Package protocol defines the contracts between the registry and trigger or action implementations.
package protocol

import (
	"time"

	"github.com/salonkit/workflowd/pkg/models"
)

// Trigger is a parsed trigger configuration. Concrete triggers also implement
// one of EventTrigger, ScheduledTrigger or CohortTrigger.
type Trigger interface {
	Type() string
}

// EventTrigger decides whether a lifecycle event fires the workflow.
type EventTrigger interface {
	Trigger
	Matches(event models.LifecycleEvent) bool
}

// ScheduledTrigger computes the next due time strictly after the reference.
// A nil result means the trigger never fires again.
type ScheduledTrigger interface {
	Trigger
	NextRun(after time.Time) *time.Time
}

// CohortTrigger selects customers whose last visit falls inside [from, to).
type CohortTrigger interface {
	Trigger
	VisitWindow(now time.Time) (from, to time.Time)
}

type TriggerFactory interface {
	Create(config map[string]any) (Trigger, error)
	ID() string
	Name() string
	Description() string
	Category() models.TriggerCategory
	Schema() map[string]any
}
