package sendmessage

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/salonkit/workflowd/pkg/config"
	"github.com/salonkit/workflowd/pkg/dispatch"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
)

var (
	ErrTemplateRequired = errors.New("template_id is required")
	ErrInvalidChannel   = errors.New("unsupported channel")
	ErrNoDispatcher     = errors.New("no dispatcher configured")
)

type Action struct {
	TemplateID string
	Channel    string

	dispatcher dispatch.Dispatcher
}

func NewAction(cfg map[string]any, dispatcher dispatch.Dispatcher) (*Action, error) {
	templateID, err := config.String(cfg, "template_id")
	if err != nil {
		return nil, err
	}

	channel, err := config.String(cfg, "channel")
	if err != nil {
		return nil, err
	}

	if channel == "" {
		channel = DefaultChannel
	}

	action := &Action{
		TemplateID: templateID,
		Channel:    channel,
		dispatcher: dispatcher,
	}

	err = action.Validate()
	if err != nil {
		return nil, err
	}

	return action, nil
}

func (a *Action) Validate() error {
	if a.TemplateID == "" {
		return ErrTemplateRequired
	}

	if !slices.Contains(Channels, a.Channel) {
		return fmt.Errorf("%w: %s", ErrInvalidChannel, a.Channel)
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, target protocol.Target) error {
	if a.dispatcher == nil {
		return ErrNoDispatcher
	}

	err := a.dispatcher.Send(ctx, models.DispatchRequest{
		IdempotencyKey: target.IdempotencyKey,
		ExecutionID:    target.ExecutionID,
		WorkflowID:     target.WorkflowID,
		ShopID:         target.ShopID,
		CustomerID:     target.CustomerID,
		TemplateID:     a.TemplateID,
		Channel:        a.Channel,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to customer %s: %w", target.CustomerID, err)
	}

	return nil
}
