package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/salonkit/workflowd/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLifecycleEvent(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		event    models.LifecycleEvent
		expected EventType
	}{
		{"visit", models.CustomerVisit{VisitID: "v1", ShopID: "s", CustomerID: "c", VisitCount: 2, VisitedAt: at}, CustomerVisitedEvent},
		{"registration", models.CustomerRegistration{ShopID: "s", CustomerID: "c", RegisteredAt: at}, CustomerRegisteredEvent},
		{"payment", models.PaymentCompleted{PaymentID: "p", ShopID: "s", CustomerID: "c", Amount: 5000, CompletedAt: at}, PaymentCompletedEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := NewLifecycleEvent(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, event.GetType())
		})
	}
}

func TestDecode_VisitPayload(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	visit := models.CustomerVisit{VisitID: "v1", ShopID: "shop-1", CustomerID: "c1", VisitCount: 3, VisitedAt: at}

	event, err := NewLifecycleEvent(visit)
	require.NoError(t, err)

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"visit_count":3`)

	decoded, err := Decode(CustomerVisitedEvent, payload)
	require.NoError(t, err)

	visited, ok := decoded.(*CustomerVisited)
	require.True(t, ok)
	assert.Equal(t, visit, visited.Visit)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("coupon.issued", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownEventType)

	_, err = Decode(PaymentCompletedEvent, []byte(`{"payment":`))
	require.Error(t, err)
}

func TestWorkflowRunRequested_Validate(t *testing.T) {
	tests := []struct {
		name        string
		event       WorkflowRunRequested
		expectedErr string
	}{
		{name: "valid", event: WorkflowRunRequested{WorkflowID: "wf", ShopID: "shop"}},
		{name: "missing workflow", event: WorkflowRunRequested{ShopID: "shop"}, expectedErr: "workflow_id is required"},
		{name: "missing shop", event: WorkflowRunRequested{WorkflowID: "wf"}, expectedErr: "shop_id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.expectedErr == "" {
				require.NoError(t, err)

				return
			}

			require.EqualError(t, err, tt.expectedErr)
		})
	}
}

func TestCustomerKey(t *testing.T) {
	assert.Equal(t, "shop-1:cust-9", CustomerKey("shop-1", "cust-9"))
}
