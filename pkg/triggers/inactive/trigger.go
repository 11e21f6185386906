// Package inactive provides the PERIODIC inactive-customers cohort trigger.
package inactive

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/salonkit/workflowd/pkg/config"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
)

var ErrInactiveDaysRequired = errors.New("inactive_days must be at least 1")

func NewInactiveTriggerFactory() protocol.TriggerFactory {
	return &InactiveTriggerFactory{}
}

type InactiveTriggerFactory struct{}

func (f *InactiveTriggerFactory) ID() string {
	return models.TriggerTypeInactiveCustomers
}

func (f *InactiveTriggerFactory) Name() string {
	return "Inactive customers"
}

func (f *InactiveTriggerFactory) Description() string {
	return "Daily check selecting customers whose last visit was exactly N days ago"
}

func (f *InactiveTriggerFactory) Category() models.TriggerCategory {
	return models.TriggerCategoryPeriodic
}

func (f *InactiveTriggerFactory) Schema() map[string]any {
	return map[string]any{
		"type":  "object",
		"title": "Inactive Customers Trigger Configuration",
		"properties": map[string]any{
			"inactive_days": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"maximum":     3650,
				"description": "Number of days since the last visit",
				"examples":    []int{30, 60, 90},
			},
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone defining day boundaries, UTC when omitted",
			},
		},
		"required":             []string{"inactive_days"},
		"additionalProperties": false,
	}
}

func (f *InactiveTriggerFactory) Create(cfg map[string]any) (protocol.Trigger, error) {
	days, ok, err := config.Int(cfg, "inactive_days")
	if err != nil {
		return nil, err
	}

	if !ok || days < 1 {
		return nil, ErrInactiveDaysRequired
	}

	timezone, err := config.String(cfg, "timezone")
	if err != nil {
		return nil, err
	}

	location := time.UTC

	if timezone != "" {
		location, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}

	return &InactiveTrigger{InactiveDays: int(days), location: location}, nil
}

type InactiveTrigger struct {
	InactiveDays int

	location *time.Location
}

func (t *InactiveTrigger) Type() string {
	return models.TriggerTypeInactiveCustomers
}

// VisitWindow covers the whole calendar day InactiveDays before now's day.
func (t *InactiveTrigger) VisitWindow(now time.Time) (from, to time.Time) {
	location := t.location
	if location == nil {
		location = time.UTC
	}

	local := now.In(location)
	startOfToday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)

	from = startOfToday.AddDate(0, 0, -t.InactiveDays)
	to = from.AddDate(0, 0, 1)

	return from.UTC(), to.UTC()
}
