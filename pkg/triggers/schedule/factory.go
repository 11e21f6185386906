package schedule

import (
	"fmt"

	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
)

func NewScheduleTriggerFactory() protocol.TriggerFactory {
	return &ScheduleTriggerFactory{}
}

type ScheduleTriggerFactory struct{}

func (f *ScheduleTriggerFactory) ID() string {
	return models.TriggerTypeScheduled
}

func (f *ScheduleTriggerFactory) Name() string {
	return "Schedule"
}

func (f *ScheduleTriggerFactory) Description() string {
	return "Run the workflow on a cron schedule or once at a given time"
}

func (f *ScheduleTriggerFactory) Category() models.TriggerCategory {
	return models.TriggerCategorySchedule
}

func (f *ScheduleTriggerFactory) Schema() map[string]any {
	return map[string]any{
		"type":        "object",
		"title":       "Schedule Trigger Configuration",
		"description": "Either a recurring cron schedule or a one-shot run_at timestamp",
		"properties": map[string]any{
			"cron": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Cron expression defining the schedule (standard 5-field format or @daily style descriptor)",
				"examples": []string{
					"0 9 * * *",  // Daily at 9 AM
					"0 10 * * 1", // Every Monday at 10 AM
					"0 0 1 * *",  // First day of every month
				},
			},
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone the cron expression is evaluated in, UTC when omitted",
				"examples":    []string{"Asia/Seoul", "Europe/Lisbon"},
			},
			"run_at": map[string]any{
				"type":        "string",
				"format":      "date-time",
				"description": "Single run time in RFC3339",
			},
		},
		"oneOf": []map[string]any{
			{"required": []string{"cron"}},
			{"required": []string{"run_at"}},
		},
		"additionalProperties": false,
	}
}

func (f *ScheduleTriggerFactory) Create(config map[string]any) (protocol.Trigger, error) {
	trigger, err := NewScheduleTrigger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule trigger: %w", err)
	}

	return trigger, nil
}
