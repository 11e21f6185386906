// Package actions runs a workflow's configured action against each target customer.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/salonkit/workflowd/pkg/claims"
	"github.com/salonkit/workflowd/pkg/metrics"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
	"github.com/salonkit/workflowd/pkg/registry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency     = 4
	DefaultDispatchTimeout = 10 * time.Second

	claimTTL = 24 * time.Hour
)

// ConfigurationError means the action could not be built, so nothing was dispatched.
type ConfigurationError struct {
	WorkflowID string
	ActionType string
	Err        error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("action '%s' of workflow %s is misconfigured: %v", e.ActionType, e.WorkflowID, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Result always satisfies SuccessCount+FailureCount == number of targets.
type Result struct {
	SuccessCount int
	FailureCount int
}

type Executor struct {
	registry *registry.Registry
	claims   claims.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger

	concurrency     int
	dispatchTimeout time.Duration
}

type Option func(*Executor)

func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithDispatchTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.dispatchTimeout = timeout
		}
	}
}

// WithClaims deduplicates dispatches by execution and customer. Without a claims store
// delivery is at least once.
func WithClaims(store claims.Store) Option {
	return func(e *Executor) {
		e.claims = store
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

func NewExecutor(reg *registry.Registry, logger *slog.Logger, opts ...Option) *Executor {
	executor := &Executor{
		registry:        reg,
		logger:          logger.With("module", "action_executor"),
		concurrency:     DefaultConcurrency,
		dispatchTimeout: DefaultDispatchTimeout,
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// ExecuteAction dispatches the workflow's action once per target. One customer's failure
// never aborts the batch. A configuration error fails every target without dispatching.
// If ctx ends mid-batch the undispatched targets count as failures and ctx's error is returned.
func (e *Executor) ExecuteAction(
	ctx context.Context,
	workflow *models.Workflow,
	targets []string,
	execution *models.WorkflowExecution,
) (Result, error) {
	action, err := e.registry.CreateAction(workflow.Action)
	if err != nil {
		return Result{FailureCount: len(targets)}, &ConfigurationError{
			WorkflowID: workflow.ID,
			ActionType: workflow.Action.Type,
			Err:        err,
		}
	}

	logger := e.logger.With(
		"workflow_id", workflow.ID,
		"execution_id", execution.ID,
		"action_type", workflow.Action.Type,
	)

	logger.InfoContext(ctx, "Dispatching action", "targets", len(targets))

	var (
		group     errgroup.Group
		succeeded atomic.Int64
		failed    atomic.Int64
	)

	group.SetLimit(e.concurrency)

	for _, customerID := range targets {
		if ctx.Err() != nil {
			failed.Add(1)

			continue
		}

		group.Go(func() error {
			if e.dispatch(ctx, logger, action, workflow, execution, customerID) {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}

			return nil
		})
	}

	_ = group.Wait()

	result := Result{SuccessCount: int(succeeded.Load()), FailureCount: int(failed.Load())}

	logger.InfoContext(ctx, "Action dispatched",
		"success_count", result.SuccessCount,
		"failure_count", result.FailureCount,
	)

	return result, ctx.Err()
}

func (e *Executor) dispatch(
	ctx context.Context,
	logger *slog.Logger,
	action protocol.Action,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	customerID string,
) bool {
	key := IdempotencyKey(execution.ID, customerID)

	claimed, err := e.claim(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "Dispatch claim unavailable, sending without dedup", "customer_id", customerID, "error", err)
	} else if !claimed {
		logger.DebugContext(ctx, "Dispatch already claimed", "customer_id", customerID)
		e.metrics.Dispatched(metrics.DispatchDuplicate)

		return true
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	defer cancel()

	err = action.Execute(dispatchCtx, protocol.Target{
		IdempotencyKey: key,
		ExecutionID:    execution.ID,
		WorkflowID:     workflow.ID,
		ShopID:         workflow.ShopID,
		CustomerID:     customerID,
	})
	if err != nil {
		logger.WarnContext(ctx, "Dispatch failed", "customer_id", customerID, "error", err)
		e.metrics.Dispatched(metrics.DispatchFailed)
		e.release(ctx, logger, key)

		return false
	}

	e.metrics.Dispatched(metrics.DispatchSent)

	return true
}

func (e *Executor) claim(ctx context.Context, key string) (bool, error) {
	if e.claims == nil {
		return true, nil
	}

	return e.claims.Claim(ctx, key, claimTTL)
}

func (e *Executor) release(ctx context.Context, logger *slog.Logger, key string) {
	if e.claims == nil {
		return
	}

	// the batch context may already be done; releasing must still happen
	err := e.claims.Release(context.WithoutCancel(ctx), key)
	if err != nil {
		logger.WarnContext(ctx, "Failed to release dispatch claim", "key", key, "error", err)
	}
}

// IdempotencyKey identifies one customer's dispatch within an execution.
func IdempotencyKey(executionID, customerID string) string {
	return "dispatch:" + executionID + ":" + customerID
}
