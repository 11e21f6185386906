package lifecycle

import (
	"testing"
	"time"

	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitTrigger_Matches(t *testing.T) {
	factory := NewVisitTriggerFactory()
	assert.Equal(t, models.TriggerCategoryEvent, factory.Category())

	tests := []struct {
		name     string
		config   map[string]any
		event    models.LifecycleEvent
		expected bool
	}{
		{
			name:     "any visit",
			config:   map[string]any{},
			event:    models.CustomerVisit{VisitCount: 7},
			expected: true,
		},
		{
			name:     "nth visit from JSON",
			config:   map[string]any{"nth_visit": float64(3)},
			event:    models.CustomerVisit{VisitCount: 3},
			expected: true,
		},
		{
			name:     "other visit number",
			config:   map[string]any{"nth_visit": 3},
			event:    models.CustomerVisit{VisitCount: 4},
			expected: false,
		},
		{
			name:     "wrong event kind",
			config:   map[string]any{},
			event:    models.PaymentCompleted{Amount: 100},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := factory.Create(tt.config)
			require.NoError(t, err)

			eventTrigger, ok := trigger.(protocol.EventTrigger)
			require.True(t, ok)
			assert.Equal(t, tt.expected, eventTrigger.Matches(tt.event))
		})
	}
}

func TestVisitTrigger_RejectsFractionalVisit(t *testing.T) {
	_, err := NewVisitTriggerFactory().Create(map[string]any{"nth_visit": 2.5})
	require.Error(t, err)
}

func TestRegistrationTrigger_Matches(t *testing.T) {
	factory := NewRegistrationTriggerFactory()

	anyChannel, err := factory.Create(nil)
	require.NoError(t, err)

	online, err := factory.Create(map[string]any{"channel": "online"})
	require.NoError(t, err)

	event := models.CustomerRegistration{Channel: "walk-in", RegisteredAt: time.Now()}

	assert.True(t, anyChannel.(protocol.EventTrigger).Matches(event))
	assert.False(t, online.(protocol.EventTrigger).Matches(event))

	event.Channel = "online"
	assert.True(t, online.(protocol.EventTrigger).Matches(event))
}

func TestPaymentTrigger_Matches(t *testing.T) {
	factory := NewPaymentTriggerFactory()

	tests := []struct {
		name     string
		config   map[string]any
		payment  models.PaymentCompleted
		expected bool
	}{
		{
			name:     "no conditions",
			config:   map[string]any{},
			payment:  models.PaymentCompleted{Amount: 1, Method: "cash"},
			expected: true,
		},
		{
			name:     "below minimum",
			config:   map[string]any{"min_amount": float64(50000)},
			payment:  models.PaymentCompleted{Amount: 49999, Method: "card"},
			expected: false,
		},
		{
			name:     "at minimum",
			config:   map[string]any{"min_amount": float64(50000)},
			payment:  models.PaymentCompleted{Amount: 50000, Method: "card"},
			expected: true,
		},
		{
			name:     "method filtered out",
			config:   map[string]any{"payment_methods": []any{"card"}},
			payment:  models.PaymentCompleted{Amount: 100, Method: "cash"},
			expected: false,
		},
		{
			name:     "method accepted",
			config:   map[string]any{"payment_methods": []any{"card", "cash"}},
			payment:  models.PaymentCompleted{Amount: 100, Method: "cash"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := factory.Create(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, trigger.(protocol.EventTrigger).Matches(tt.payment))
		})
	}
}

func TestPaymentTrigger_InvalidConfig(t *testing.T) {
	_, err := NewPaymentTriggerFactory().Create(map[string]any{"payment_methods": []any{1}})
	require.Error(t, err)

	_, err = NewPaymentTriggerFactory().Create(map[string]any{"min_amount": "lots"})
	require.Error(t, err)
}
