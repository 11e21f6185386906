// Package outbox relays lifecycle events written by producers inside their own transactions
// to the event bus, once those transactions committed.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/salonkit/workflowd/pkg/claims"
	"github.com/salonkit/workflowd/pkg/eventbus"
	"github.com/salonkit/workflowd/pkg/events"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/persistence"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultBatchSize   = 100
	DefaultMaxAttempts = 10

	// RelayLease is held for the duration of one pass so that a single relay publishes
	// a given batch.
	RelayLease = "outbox:relay"

	minLeaseTTL = 30 * time.Second
)

// NewMessage builds the outbox row a producer inserts for a committed lifecycle event.
func NewMessage(event models.LifecycleEvent) (*models.OutboxMessage, error) {
	busEvent, err := events.NewLifecycleEvent(event)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(busEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", busEvent.GetType(), err)
	}

	return &models.OutboxMessage{
		EventType: string(busEvent.GetType()),
		Key:       events.CustomerKey(event.EventShopID(), event.EventCustomerID()),
		Payload:   payload,
	}, nil
}

type Relay struct {
	outbox      persistence.OutboxRepository
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
	claims      claims.Store
	now         func() time.Time
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithClaims makes relays sharing the store take turns: a pass runs only while it holds
// RelayLease.
func WithClaims(store claims.Store) Option {
	return func(r *Relay) {
		r.claims = store
	}
}

func NewRelay(outbox persistence.OutboxRepository, publisher eventbus.EventPublisher, logger *slog.Logger, opts ...Option) *Relay {
	relay := &Relay{
		outbox:      outbox,
		publisher:   publisher,
		logger:      logger.With("module", "outbox_relay"),
		interval:    DefaultInterval,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(relay)
	}

	return relay
}

// Run polls the outbox until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "Outbox relay started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Outbox relay stopped")

			return
		case <-ticker.C:
			_, err := r.RelayPending(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "Outbox relay pass failed", "error", err)
			}
		}
	}
}

// RelayPending publishes one batch of pending messages oldest first and returns how many
// were published. A publish failure stops the batch so later messages of the same key are
// not delivered ahead of it. Messages that cannot be decoded are marked failed; once they
// exhausted their attempts the store stops returning them.
//
// With WithClaims configured the pass runs under RelayLease and returns zero without
// touching the outbox when another relay holds it. The pass is cut off when the lease
// lapses.
func (r *Relay) RelayPending(ctx context.Context) (int, error) {
	if r.claims == nil {
		return r.relayBatch(ctx)
	}

	ttl := r.leaseTTL()

	held, err := r.claims.Claim(ctx, RelayLease, ttl)
	if err != nil {
		return 0, fmt.Errorf("failed to claim outbox relay lease: %w", err)
	}

	if !held {
		r.logger.DebugContext(ctx, "Outbox relay lease held elsewhere")

		return 0, nil
	}

	defer func() {
		err := r.claims.Release(context.WithoutCancel(ctx), RelayLease)
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to release outbox relay lease", "error", err)
		}
	}()

	passCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()

	return r.relayBatch(passCtx)
}

func (r *Relay) leaseTTL() time.Duration {
	return max(minLeaseTTL, 5*r.interval)
}

func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	pending, err := r.outbox.FetchPending(ctx, r.batchSize, r.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending outbox messages: %w", err)
	}

	published := 0

	for _, message := range pending {
		logger := r.logger.With("message_id", message.ID, "event_type", message.EventType)

		event, err := events.Decode(events.EventType(message.EventType), message.Payload)
		if err != nil {
			logger.WarnContext(ctx, "Undecodable outbox message", "error", err)
			r.markFailed(ctx, logger, message, err)

			continue
		}

		err = r.publisher.Publish(ctx, message.Key, event)
		if err != nil {
			r.markFailed(ctx, logger, message, err)

			return published, fmt.Errorf("failed to publish outbox message %s: %w", message.ID, err)
		}

		err = r.outbox.MarkPublished(ctx, message.ID, r.now().UTC())
		if err != nil {
			return published, fmt.Errorf("failed to mark outbox message %s published: %w", message.ID, err)
		}

		published++
	}

	if published > 0 {
		r.logger.DebugContext(ctx, "Relayed outbox messages", "count", published)
	}

	return published, nil
}

func (r *Relay) markFailed(ctx context.Context, logger *slog.Logger, message *models.OutboxMessage, cause error) {
	err := r.outbox.MarkFailed(ctx, message.ID, cause.Error())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record outbox failure", "error", err)
	}
}
