// Package schedule provides the time-deferred SCHEDULE trigger type.
package schedule

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/salonkit/workflowd/pkg/config"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
)

var (
	ErrNoSchedule        = errors.New("either cron or run_at is required")
	ErrAmbiguousSchedule = errors.New("cron and run_at are mutually exclusive")
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ScheduleTrigger fires on a cron schedule, or once at RunAt.
type ScheduleTrigger struct {
	CronExpr string
	Timezone string
	RunAt    *time.Time

	schedule cron.Schedule
}

func NewScheduleTrigger(cfg map[string]any) (*ScheduleTrigger, error) {
	cronExpr, err := config.String(cfg, "cron")
	if err != nil {
		return nil, err
	}

	timezone, err := config.String(cfg, "timezone")
	if err != nil {
		return nil, err
	}

	runAtRaw, err := config.String(cfg, "run_at")
	if err != nil {
		return nil, err
	}

	trigger := &ScheduleTrigger{CronExpr: cronExpr, Timezone: timezone}

	if runAtRaw != "" {
		runAt, err := time.Parse(time.RFC3339, runAtRaw)
		if err != nil {
			return nil, fmt.Errorf("run_at must be an RFC3339 timestamp: %w", err)
		}

		runAt = runAt.UTC()
		trigger.RunAt = &runAt
	}

	err = trigger.Validate()
	if err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *ScheduleTrigger) Validate() error {
	switch {
	case t.CronExpr == "" && t.RunAt == nil:
		return ErrNoSchedule
	case t.CronExpr != "" && t.RunAt != nil:
		return ErrAmbiguousSchedule
	case t.RunAt != nil:
		return nil
	}

	spec := t.CronExpr

	if t.Timezone != "" {
		_, err := time.LoadLocation(t.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", t.Timezone, err)
		}

		spec = "CRON_TZ=" + t.Timezone + " " + t.CronExpr
	}

	schedule, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	t.schedule = schedule

	return nil
}

func (t *ScheduleTrigger) Type() string {
	return models.TriggerTypeScheduled
}

// NextRun returns the next occurrence strictly after the reference time, in UTC.
func (t *ScheduleTrigger) NextRun(after time.Time) *time.Time {
	if t.RunAt != nil {
		if t.RunAt.After(after) {
			runAt := *t.RunAt

			return &runAt
		}

		return nil
	}

	next := t.schedule.Next(after)
	if next.IsZero() {
		return nil
	}

	next = next.UTC()

	return &next
}

var _ protocol.ScheduledTrigger = (*ScheduleTrigger)(nil)
