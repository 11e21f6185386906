package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/salonkit/workflowd/pkg/actions"
	"github.com/salonkit/workflowd/pkg/claims"
	"github.com/salonkit/workflowd/pkg/eventbus"
	"github.com/salonkit/workflowd/pkg/metrics"
	"github.com/salonkit/workflowd/pkg/orchestrator"
	"github.com/salonkit/workflowd/pkg/persistence"
	"github.com/salonkit/workflowd/pkg/registry"
	"github.com/salonkit/workflowd/pkg/targeting"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the execution stack shared by the worker and the scheduler.
type Engine struct {
	Persistence  persistence.Persistence
	Registry     *registry.Registry
	Resolver     *targeting.Resolver
	Orchestrator *orchestrator.Orchestrator
	Claims       claims.Store
	Metrics      *metrics.Metrics
	Tracer       trace.Tracer
	EventBus     eventbus.EventBus

	closers []func(context.Context) error
}

// NewEngine builds the engine from CommonFlags and ExecutionFlags. Finalized executions
// are announced on the event bus.
func NewEngine(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (*Engine, error) {
	engine := &Engine{Metrics: metrics.New()}

	tracer, shutdownTracer, err := NewTracer(ctx, command.Bool("otel-enabled"), serviceName)
	if err != nil {
		return nil, err
	}

	engine.Tracer = tracer
	engine.closers = append(engine.closers, shutdownTracer)

	store, err := NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, engine.abort(ctx, err)
	}

	engine.Persistence = store
	engine.closers = append(engine.closers, store.Close)

	claimStore, closeClaims, err := NewClaims(ctx, command.String("redis-url"))
	if err != nil {
		return nil, engine.abort(ctx, err)
	}

	engine.Claims = claimStore
	engine.closers = append(engine.closers, func(context.Context) error { return closeClaims() })

	bus, err := NewEventBus(command.String("event-bus"), serviceName, logger)
	if err != nil {
		return nil, engine.abort(ctx, err)
	}

	engine.EventBus = bus
	engine.closers = append(engine.closers, func(context.Context) error { return bus.Close() })

	dir, err := NewDirectory(command.String("directory-url"))
	if err != nil {
		return nil, engine.abort(ctx, err)
	}

	dispatcher := NewDispatcher(command.String("dispatch-url"), command.Duration("dispatch-timeout"), logger)
	engine.Registry = NewRegistry(logger, dispatcher)

	engine.Resolver = targeting.NewResolver(dir, engine.Registry, logger)

	executor := actions.NewExecutor(engine.Registry, logger,
		actions.WithConcurrency(command.Int("dispatch-concurrency")),
		actions.WithDispatchTimeout(command.Duration("dispatch-timeout")),
		actions.WithClaims(claimStore),
		actions.WithMetrics(engine.Metrics),
	)

	engine.Orchestrator = orchestrator.New(
		store.ExecutionRepository(),
		engine.Resolver,
		executor,
		logger,
		orchestrator.WithPublisher(bus),
		orchestrator.WithMetrics(engine.Metrics),
		orchestrator.WithTracer(tracer),
	)

	return engine, nil
}

// Close releases everything in reverse order of acquisition.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error

	for i := len(e.closers) - 1; i >= 0; i-- {
		err := e.closers[i](ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	e.closers = nil

	return errors.Join(errs...)
}

func (e *Engine) abort(ctx context.Context, err error) error {
	closeErr := e.Close(ctx)
	if closeErr != nil {
		return fmt.Errorf("%w (cleanup: %w)", err, closeErr)
	}

	return err
}
