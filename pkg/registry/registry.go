// Package registry maps trigger and action type tags to their config parsers.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrUnknownTriggerType = errors.New("unknown trigger type")
	ErrUnknownActionType  = errors.New("unknown action type")
)

// ConfigError reports a trigger or action config that fails its schema or parser.
type ConfigError struct {
	Kind string // "trigger" or "action"
	Type string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s config for '%s': %v", e.Kind, e.Type, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is any registry configuration failure.
func IsConfigurationError(err error) bool {
	var configErr *ConfigError

	return errors.As(err, &configErr) ||
		errors.Is(err, ErrUnknownTriggerType) ||
		errors.Is(err, ErrUnknownActionType)
}

type Registry struct {
	logger           *slog.Logger
	actionFactories  map[string]protocol.ActionFactory
	triggerFactories map[string]protocol.TriggerFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:           log,
		actionFactories:  make(map[string]protocol.ActionFactory),
		triggerFactories: make(map[string]protocol.TriggerFactory),
	}
}

func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.actionFactories[actionFactory.ID()] = actionFactory
	r.logger.Debug("Registered action", "type", actionFactory.ID())
}

func (r *Registry) RegisterTrigger(triggerFactory protocol.TriggerFactory) {
	r.triggerFactories[triggerFactory.ID()] = triggerFactory
	r.logger.Debug("Registered trigger", "type", triggerFactory.ID(), "category", triggerFactory.Category())
}

// TriggerCategory returns the category a trigger type belongs to.
func (r *Registry) TriggerCategory(triggerType string) (models.TriggerCategory, error) {
	factory, ok := r.triggerFactories[triggerType]
	if !ok {
		return "", fmt.Errorf("%w '%s'", ErrUnknownTriggerType, triggerType)
	}

	return factory.Category(), nil
}

// CreateTrigger validates the trigger against its schema and category and parses its config.
func (r *Registry) CreateTrigger(trigger models.Trigger) (protocol.Trigger, error) {
	factory, ok := r.triggerFactories[trigger.Type]
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownTriggerType, trigger.Type)
	}

	if trigger.Category != "" && trigger.Category != factory.Category() {
		return nil, &ConfigError{
			Kind: "trigger",
			Type: trigger.Type,
			Err:  fmt.Errorf("category must be %s, got %s", factory.Category(), trigger.Category),
		}
	}

	err := validateSchema(factory.Schema(), trigger.Config)
	if err != nil {
		return nil, &ConfigError{Kind: "trigger", Type: trigger.Type, Err: err}
	}

	parsed, err := factory.Create(configOrEmpty(trigger.Config))
	if err != nil {
		return nil, &ConfigError{Kind: "trigger", Type: trigger.Type, Err: err}
	}

	return parsed, nil
}

// CreateAction validates the action config against its schema and builds the action.
func (r *Registry) CreateAction(action models.Action) (protocol.Action, error) {
	factory, ok := r.actionFactories[action.Type]
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownActionType, action.Type)
	}

	err := validateSchema(factory.Schema(), action.Config)
	if err != nil {
		return nil, &ConfigError{Kind: "action", Type: action.Type, Err: err}
	}

	created, err := factory.Create(configOrEmpty(action.Config))
	if err != nil {
		return nil, &ConfigError{Kind: "action", Type: action.Type, Err: err}
	}

	return created, nil
}

// GetAvailableTriggers returns the registered trigger factories ordered by ID.
func (r *Registry) GetAvailableTriggers() []protocol.TriggerFactory {
	factories := make([]protocol.TriggerFactory, 0, len(r.triggerFactories))
	for _, factory := range r.triggerFactories {
		factories = append(factories, factory)
	}

	slices.SortFunc(factories, func(a, b protocol.TriggerFactory) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return factories
}

// GetAvailableActions returns the registered action factories ordered by ID.
func (r *Registry) GetAvailableActions() []protocol.ActionFactory {
	factories := make([]protocol.ActionFactory, 0, len(r.actionFactories))
	for _, factory := range r.actionFactories {
		factories = append(factories, factory)
	}

	slices.SortFunc(factories, func(a, b protocol.ActionFactory) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return factories
}

func validateSchema(schema map[string]any, config map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(configOrEmpty(config))

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func configOrEmpty(config map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}

	return config
}
