package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/persistence"
)

// OutboxRepository stores lifecycle events awaiting relay.
type OutboxRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewOutboxRepository(db *sql.DB, logger *slog.Logger) *OutboxRepository {
	return &OutboxRepository{db: db, logger: logger}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, message *models.OutboxMessage) error {
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

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_outbox (id, event_type, event_key, payload, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, message.ID, message.EventType, message.Key, []byte(message.Payload), message.Attempts, message.LastError, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox message: %w", err)
	}

	return nil
}

// FetchPending returns unpublished messages that have not exhausted maxAttempts, oldest first.
// Dead rows are filtered in the query so they never occupy the batch.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit, maxAttempts int) ([]*models.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	if maxAttempts <= 0 {
		maxAttempts = math.MaxInt32
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, event_key, payload, attempts, last_error, created_at, published_at
		FROM automation_outbox
		WHERE published_at IS NULL AND attempts < $2
		ORDER BY created_at ASC
		LIMIT $1
	`, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	messages := make([]*models.OutboxMessage, 0)

	for rows.Next() {
		var (
			message models.OutboxMessage
			payload []byte
		)

		err := rows.Scan(
			&message.ID,
			&message.EventType,
			&message.Key,
			&payload,
			&message.Attempts,
			&message.LastError,
			&message.CreatedAt,
			&message.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}

		message.Payload = payload
		messages = append(messages, &message)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating outbox: %w", err)
	}

	return messages, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, `UPDATE automation_outbox SET published_at = $2 WHERE id = $1`, id, at)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.update(ctx, id, `UPDATE automation_outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, reason)
}

func (r *OutboxRepository) update(ctx context.Context, id, query string, args ...any) error {
	if uuid.Validate(id) != nil {
		return fmt.Errorf("outbox message %s: %w", id, persistence.ErrOutboxMessageNotFound)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update outbox message: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("outbox message %s: %w", id, persistence.ErrOutboxMessageNotFound)
	}

	return nil
}
