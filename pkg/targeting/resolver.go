// Package targeting resolves the customers a workflow execution acts on.
package targeting

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/salonkit/workflowd/pkg/directory"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/protocol"
	"github.com/salonkit/workflowd/pkg/registry"
)

const DefaultLookupTimeout = 10 * time.Second

// FilterResolutionError reports a customer directory lookup that failed.
type FilterResolutionError struct {
	ShopID string
	Lookup string
	Err    error
}

func (e *FilterResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve targets for shop %s: %s: %v", e.ShopID, e.Lookup, e.Err)
}

func (e *FilterResolutionError) Unwrap() error {
	return e.Err
}

type Resolver struct {
	directory     directory.Directory
	registry      *registry.Registry
	logger        *slog.Logger
	lookupTimeout time.Duration
	now           func() time.Time
}

type Option func(*Resolver)

func WithLookupTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		if timeout > 0 {
			r.lookupTimeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

func NewResolver(dir directory.Directory, reg *registry.Registry, logger *slog.Logger, opts ...Option) *Resolver {
	resolver := &Resolver{
		directory:     dir,
		registry:      reg,
		logger:        logger.With("module", "targeting"),
		lookupTimeout: DefaultLookupTimeout,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(resolver)
	}

	return resolver
}

// ResolveTargets builds the base candidate set from grades and tags, falling back to all
// active customers when neither is set, then removes excluded customers. The result is
// sorted and free of duplicates. An empty result is not an error.
func (r *Resolver) ResolveTargets(ctx context.Context, workflow *models.Workflow) ([]string, error) {
	targeting := workflow.Targeting
	targeting.ApplyDefaults()

	var (
		base []string
		err  error
	)

	if len(targeting.Grades) == 0 && len(targeting.Tags) == 0 {
		base, err = r.lookup(ctx, workflow.ShopID, "active customers", func(ctx context.Context) ([]string, error) {
			return r.directory.FindActiveCustomers(ctx, workflow.ShopID)
		})
	} else {
		base, err = r.lookup(ctx, workflow.ShopID, "grade or tag", func(ctx context.Context) ([]string, error) {
			return r.directory.FindCustomersByGradeOrTag(ctx, workflow.ShopID, targeting.Grades, targeting.Tags)
		})
	}

	if err != nil {
		return nil, err
	}

	targets, err := r.exclude(ctx, workflow.ShopID, targeting, normalize(base))
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Resolved targets",
		"workflow_id", workflow.ID,
		"shop_id", workflow.ShopID,
		"base", len(base),
		"targets", len(targets),
	)

	return targets, nil
}

// FilterByTriggerConditions narrows an already known candidate list with the trigger's own
// conditions. With an event, an event trigger keeps only the event's customer, and only when
// the event matches; targeting and exclusions are then applied to that customer. Cohort
// triggers intersect with their visit window. Scheduled triggers pass candidates through.
func (r *Resolver) FilterByTriggerConditions(
	ctx context.Context,
	candidates []string,
	workflow *models.Workflow,
	event models.LifecycleEvent,
) ([]string, error) {
	trigger, err := r.registry.CreateTrigger(workflow.Trigger)
	if err != nil {
		return nil, err
	}

	switch t := trigger.(type) {
	case protocol.EventTrigger:
		if event == nil {
			return normalize(candidates), nil
		}

		return r.narrowToEvent(ctx, candidates, workflow, t, event)
	case protocol.CohortTrigger:
		from, to := t.VisitWindow(r.now())

		cohort, err := r.lookup(ctx, workflow.ShopID, "last visit window", func(ctx context.Context) ([]string, error) {
			return r.directory.FindCustomersLastVisitedBetween(ctx, workflow.ShopID, from, to)
		})
		if err != nil {
			return nil, err
		}

		return intersect(normalize(candidates), cohort), nil
	default:
		return normalize(candidates), nil
	}
}

func (r *Resolver) narrowToEvent(
	ctx context.Context,
	candidates []string,
	workflow *models.Workflow,
	trigger protocol.EventTrigger,
	event models.LifecycleEvent,
) ([]string, error) {
	if event.EventShopID() != workflow.ShopID || !trigger.Matches(event) {
		return []string{}, nil
	}

	customerID := event.EventCustomerID()
	if !slices.Contains(candidates, customerID) {
		return []string{}, nil
	}

	targets := []string{customerID}

	targeting := workflow.Targeting
	targeting.ApplyDefaults()

	if len(targeting.Grades) > 0 || len(targeting.Tags) > 0 {
		matching, err := r.lookup(ctx, workflow.ShopID, "grade or tag", func(ctx context.Context) ([]string, error) {
			return r.directory.FindCustomersByGradeOrTag(ctx, workflow.ShopID, targeting.Grades, targeting.Tags)
		})
		if err != nil {
			return nil, err
		}

		targets = intersect(targets, matching)
		if len(targets) == 0 {
			return targets, nil
		}
	}

	return r.exclude(ctx, workflow.ShopID, targeting, targets)
}

// exclude removes dormant customers, then recent message recipients, as enabled.
func (r *Resolver) exclude(ctx context.Context, shopID string, targeting models.Targeting, targets []string) ([]string, error) {
	if targeting.ExcludeDormantCustomers && len(targets) > 0 {
		dormant, err := r.lookup(ctx, shopID, "dormant customers", func(ctx context.Context) ([]string, error) {
			return r.directory.FindDormantCustomers(ctx, shopID, targeting.DormantPeriodMonths)
		})
		if err != nil {
			return nil, err
		}

		targets = subtract(targets, dormant)
	}

	if targeting.ExcludeRecentMessageReceivers && len(targets) > 0 {
		recent, err := r.lookup(ctx, shopID, "recent message recipients", func(ctx context.Context) ([]string, error) {
			return r.directory.FindRecentMessageRecipients(ctx, shopID, targeting.RecentMessagePeriodDays)
		})
		if err != nil {
			return nil, err
		}

		targets = subtract(targets, recent)
	}

	return targets, nil
}

func (r *Resolver) lookup(
	ctx context.Context,
	shopID string,
	name string,
	find func(ctx context.Context) ([]string, error),
) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	ids, err := find(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "Directory lookup failed", "shop_id", shopID, "lookup", name, "error", err)

		return nil, &FilterResolutionError{ShopID: shopID, Lookup: name, Err: err}
	}

	return ids, nil
}
