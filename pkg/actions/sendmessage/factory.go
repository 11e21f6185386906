// Package sendmessage provides the send-message action.
package sendmessage

import (
	"github.com/salonkit/workflowd/pkg/dispatch"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
)

// Channels accepted by the dispatch service.
var Channels = []string{"sms", "kakao", "email", "push"}

const DefaultChannel = "sms"

// ActionFactory is the factory for creating send-message actions.
type ActionFactory struct {
	dispatcher dispatch.Dispatcher
}

// NewActionFactory creates a factory whose actions deliver through dispatcher.
// A nil dispatcher still validates configs but cannot send.
func NewActionFactory(dispatcher dispatch.Dispatcher) *ActionFactory {
	return &ActionFactory{dispatcher: dispatcher}
}

func (*ActionFactory) ID() string {
	return models.ActionTypeSendMessage
}

func (*ActionFactory) Name() string {
	return "Send message"
}

func (*ActionFactory) Description() string {
	return "Sends a templated marketing message to every targeted customer"
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.dispatcher)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"template_id": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Message template rendered by the dispatch service",
				"examples":    []string{"tpl-revisit-coupon", "tpl-birthday"},
			},
			"channel": map[string]any{
				"type":        "string",
				"description": "Delivery channel",
				"default":     DefaultChannel,
				"enum":        Channels,
			},
		},
		"required":             []string{"template_id"},
		"additionalProperties": false,
	}
}
