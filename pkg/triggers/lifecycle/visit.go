// Package lifecycle provides the EVENT trigger types fired by customer lifecycle events.
package lifecycle

import (
	"fmt"

	"github.com/salonkit/workflowd/pkg/config"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
)

func NewVisitTriggerFactory() protocol.TriggerFactory {
	return &VisitTriggerFactory{}
}

type VisitTriggerFactory struct{}

func (f *VisitTriggerFactory) ID() string {
	return models.TriggerTypeCustomerVisit
}

func (f *VisitTriggerFactory) Name() string {
	return "Customer visit"
}

func (f *VisitTriggerFactory) Description() string {
	return "Fires when a visit is recorded, optionally only on the customer's Nth visit"
}

func (f *VisitTriggerFactory) Category() models.TriggerCategory {
	return models.TriggerCategoryEvent
}

func (f *VisitTriggerFactory) Schema() map[string]any {
	return map[string]any{
		"type":  "object",
		"title": "Customer Visit Trigger Configuration",
		"properties": map[string]any{
			"nth_visit": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"description": "Only fire on this visit number. Omit to fire on every visit.",
				"examples":    []int{1, 3, 10},
			},
		},
		"additionalProperties": false,
	}
}

func (f *VisitTriggerFactory) Create(cfg map[string]any) (protocol.Trigger, error) {
	nth, _, err := config.Int(cfg, "nth_visit")
	if err != nil {
		return nil, err
	}

	if nth < 0 {
		return nil, fmt.Errorf("nth_visit must be positive, got %d", nth)
	}

	return &VisitTrigger{NthVisit: int(nth)}, nil
}

// VisitTrigger matches customer visits. NthVisit 0 matches every visit.
type VisitTrigger struct {
	NthVisit int
}

func (t *VisitTrigger) Type() string {
	return models.TriggerTypeCustomerVisit
}

func (t *VisitTrigger) Matches(event models.LifecycleEvent) bool {
	visit, ok := event.(models.CustomerVisit)
	if !ok {
		return false
	}

	return t.NthVisit == 0 || visit.VisitCount == t.NthVisit
}
