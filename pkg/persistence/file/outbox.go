package file

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/persistence"
)

// OutboxRepository keeps outbox messages as files.
type OutboxRepository struct {
	store *jsonStore
	mu    *sync.Mutex
}

func (ob *OutboxRepository) Enqueue(_ context.Context, message *models.OutboxMessage) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if message.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate outbox message ID: %w", err)
		}

		message.ID = id.String()
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	return ob.store.write(outboxDir, message.ID, message)
}

// FetchPending returns unpublished messages that have not exhausted maxAttempts, oldest first.
func (ob *OutboxRepository) FetchPending(_ context.Context, limit, maxAttempts int) ([]*models.OutboxMessage, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ids, err := ob.store.ids(outboxDir)
	if err != nil {
		return nil, err
	}

	pending := make([]*models.OutboxMessage, 0)

	for _, id := range ids {
		message, err := ob.load(id)
		if err != nil {
			return nil, err
		}

		if message == nil || message.PublishedAt != nil {
			continue
		}

		if maxAttempts > 0 && message.Attempts >= maxAttempts {
			continue
		}

		pending = append(pending, message)
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

func (ob *OutboxRepository) MarkPublished(_ context.Context, id string, at time.Time) error {
	return ob.update(id, func(message *models.OutboxMessage) {
		message.PublishedAt = &at
	})
}

func (ob *OutboxRepository) MarkFailed(_ context.Context, id string, reason string) error {
	return ob.update(id, func(message *models.OutboxMessage) {
		message.Attempts++
		message.LastError = reason
	})
}

func (ob *OutboxRepository) update(id string, apply func(*models.OutboxMessage)) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	message, err := ob.load(id)
	if err != nil {
		return err
	}

	if message == nil {
		return fmt.Errorf("outbox message %s: %w", id, persistence.ErrOutboxMessageNotFound)
	}

	apply(message)

	return ob.store.write(outboxDir, id, message)
}

func (ob *OutboxRepository) load(id string) (*models.OutboxMessage, error) {
	var message models.OutboxMessage

	found, err := ob.store.read(outboxDir, id, &message)
	if err != nil || !found {
		return nil, err
	}

	return &message, nil
}
