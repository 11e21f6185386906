package lifecycle

import (
	"github.com/salonkit/workflowd/pkg/config"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
)

func NewRegistrationTriggerFactory() protocol.TriggerFactory {
	return &RegistrationTriggerFactory{}
}

type RegistrationTriggerFactory struct{}

func (f *RegistrationTriggerFactory) ID() string {
	return models.TriggerTypeCustomerRegistration
}

func (f *RegistrationTriggerFactory) Name() string {
	return "Customer registration"
}

func (f *RegistrationTriggerFactory) Description() string {
	return "Fires when a new customer registers with the shop"
}

func (f *RegistrationTriggerFactory) Category() models.TriggerCategory {
	return models.TriggerCategoryEvent
}

func (f *RegistrationTriggerFactory) Schema() map[string]any {
	return map[string]any{
		"type":  "object",
		"title": "Customer Registration Trigger Configuration",
		"properties": map[string]any{
			"channel": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Only fire for registrations from this channel (e.g. walk-in, online)",
			},
		},
		"additionalProperties": false,
	}
}

func (f *RegistrationTriggerFactory) Create(cfg map[string]any) (protocol.Trigger, error) {
	channel, err := config.String(cfg, "channel")
	if err != nil {
		return nil, err
	}

	return &RegistrationTrigger{Channel: channel}, nil
}

type RegistrationTrigger struct {
	Channel string
}

func (t *RegistrationTrigger) Type() string {
	return models.TriggerTypeCustomerRegistration
}

func (t *RegistrationTrigger) Matches(event models.LifecycleEvent) bool {
	registration, ok := event.(models.CustomerRegistration)
	if !ok {
		return false
	}

	return t.Channel == "" || registration.Channel == t.Channel
}
