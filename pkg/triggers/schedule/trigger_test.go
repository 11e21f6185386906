package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduleTrigger(t *testing.T) {
	tests := []struct {
		name        string
		config      map[string]any
		expectError error
	}{
		{
			name:   "daily cron",
			config: map[string]any{"cron": "0 9 * * *"},
		},
		{
			name:   "descriptor",
			config: map[string]any{"cron": "@daily"},
		},
		{
			name:   "cron with timezone",
			config: map[string]any{"cron": "0 9 * * *", "timezone": "Asia/Seoul"},
		},
		{
			name:   "one shot",
			config: map[string]any{"run_at": "2026-11-01T10:00:00Z"},
		},
		{
			name:        "nothing configured",
			config:      map[string]any{},
			expectError: ErrNoSchedule,
		},
		{
			name:        "both configured",
			config:      map[string]any{"cron": "0 9 * * *", "run_at": "2026-11-01T10:00:00Z"},
			expectError: ErrAmbiguousSchedule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewScheduleTrigger(tt.config)
			if tt.expectError != nil {
				require.ErrorIs(t, err, tt.expectError)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, trigger)
		})
	}
}

func TestNewScheduleTrigger_InvalidInput(t *testing.T) {
	for _, config := range []map[string]any{
		{"cron": "invalid cron"},
		{"cron": "0 9 * * *", "timezone": "Mars/Olympus"},
		{"run_at": "tomorrow"},
		{"cron": 5},
	} {
		_, err := NewScheduleTrigger(config)
		assert.Error(t, err, "%v", config)
	}
}

func TestScheduleTrigger_NextRun(t *testing.T) {
	reference := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	daily, err := NewScheduleTrigger(map[string]any{"cron": "0 9 * * *"})
	require.NoError(t, err)

	next := daily.NextRun(reference)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), *next)

	next = daily.NextRun(*next)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC), *next, "strictly after the reference")

	seoul, err := NewScheduleTrigger(map[string]any{"cron": "0 9 * * *", "timezone": "Asia/Seoul"})
	require.NoError(t, err)

	next = seoul.NextRun(reference)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), *next, "09:00 KST is 00:00 UTC")
	assert.Equal(t, time.UTC, next.Location())
}

func TestScheduleTrigger_OneShot(t *testing.T) {
	trigger, err := NewScheduleTrigger(map[string]any{"run_at": "2026-11-01T19:00:00+09:00"})
	require.NoError(t, err)

	runAt := time.Date(2026, 11, 1, 10, 0, 0, 0, time.UTC)

	next := trigger.NextRun(runAt.Add(-time.Hour))
	require.NotNil(t, next)
	assert.True(t, runAt.Equal(*next))

	assert.Nil(t, trigger.NextRun(runAt), "one-shot schedules never fire twice")
}
