package lifecycle

import (
	"fmt"
	"slices"

	"github.com/salonkit/workflowd/pkg/config"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
)

func NewPaymentTriggerFactory() protocol.TriggerFactory {
	return &PaymentTriggerFactory{}
}

type PaymentTriggerFactory struct{}

func (f *PaymentTriggerFactory) ID() string {
	return models.TriggerTypePaymentCompleted
}

func (f *PaymentTriggerFactory) Name() string {
	return "Payment completed"
}

func (f *PaymentTriggerFactory) Description() string {
	return "Fires after a sale is paid, optionally filtered by amount and payment method"
}

func (f *PaymentTriggerFactory) Category() models.TriggerCategory {
	return models.TriggerCategoryEvent
}

func (f *PaymentTriggerFactory) Schema() map[string]any {
	return map[string]any{
		"type":  "object",
		"title": "Payment Completed Trigger Configuration",
		"properties": map[string]any{
			"min_amount": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": "Minimum paid amount in minor currency units",
			},
			"payment_methods": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string", "minLength": 1},
				"uniqueItems": true,
				"description": "Only fire for these payment methods. Omit or leave empty for any method.",
				"examples":    [][]string{{"card"}, {"cash", "prepaid"}},
			},
		},
		"additionalProperties": false,
	}
}

func (f *PaymentTriggerFactory) Create(cfg map[string]any) (protocol.Trigger, error) {
	minAmount, _, err := config.Int(cfg, "min_amount")
	if err != nil {
		return nil, err
	}

	if minAmount < 0 {
		return nil, fmt.Errorf("min_amount cannot be negative, got %d", minAmount)
	}

	methods, err := config.Strings(cfg, "payment_methods")
	if err != nil {
		return nil, err
	}

	return &PaymentTrigger{MinAmount: minAmount, PaymentMethods: methods}, nil
}

type PaymentTrigger struct {
	MinAmount      int64
	PaymentMethods []string
}

func (t *PaymentTrigger) Type() string {
	return models.TriggerTypePaymentCompleted
}

func (t *PaymentTrigger) Matches(event models.LifecycleEvent) bool {
	payment, ok := event.(models.PaymentCompleted)
	if !ok {
		return false
	}

	if payment.Amount < t.MinAmount {
		return false
	}

	return len(t.PaymentMethods) == 0 || slices.Contains(t.PaymentMethods, payment.Method)
}
