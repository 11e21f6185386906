package protocol

import "context"

// Target identifies one per-customer dispatch of an execution.
type Target struct {
	IdempotencyKey string
	ExecutionID    string
	WorkflowID     string
	ShopID         string
	CustomerID     string
}

// Action performs the configured side effect for a single customer.
type Action interface {
	Execute(ctx context.Context, target Target) error
}

type ActionFactory interface {
	// Create parses config and returns a ready action. Malformed config is an error.
	Create(config map[string]any) (Action, error)
	ID() string
	Name() string
	Description() string
	Schema() map[string]any
}
