package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/persistence"
)

const workflowColumns = `
			id
		  , shop_id
		  , staff_id
		  , title
		  , description
		  , targeting
		  , trigger_type
		  , trigger_category
		  , trigger_config
		  , action_type
		  , action_config
		  , active
		  , execution_count
		  , success_count
		  , failure_count
		  , success_rate
		  , last_executed_at
		  , next_scheduled_at
		  , created_at
		  , updated_at
		  , deleted_at`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Save upserts a workflow. Statistics columns are owned by execution finalization and
// next_scheduled_at by UpdateNextScheduledAt once the row exists; neither is overwritten here.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	targeting, err := json.Marshal(workflow.Targeting)
	if err != nil {
		return fmt.Errorf("failed to marshal targeting: %w", err)
	}

	triggerConfig, err := marshalConfig(workflow.Trigger.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	actionConfig, err := marshalConfig(workflow.Action.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal action config: %w", err)
	}

	query := `
		INSERT INTO workflows (
			id, shop_id, staff_id, title, description, targeting,
			trigger_type, trigger_category, trigger_config,
			action_type, action_config, active, next_scheduled_at,
			created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			staff_id = EXCLUDED.staff_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			targeting = EXCLUDED.targeting,
			trigger_type = EXCLUDED.trigger_type,
			trigger_category = EXCLUDED.trigger_category,
			trigger_config = EXCLUDED.trigger_config,
			action_type = EXCLUDED.action_type,
			action_config = EXCLUDED.action_config,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
		RETURNING created_at, execution_count, success_count, failure_count, success_rate, last_executed_at, next_scheduled_at
	`

	err = r.db.QueryRowContext(ctx, query,
		workflow.ID,
		workflow.ShopID,
		workflow.StaffID,
		workflow.Title,
		workflow.Description,
		targeting,
		workflow.Trigger.Type,
		string(workflow.Trigger.Category),
		triggerConfig,
		workflow.Action.Type,
		actionConfig,
		workflow.Active,
		workflow.NextScheduledAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	).Scan(
		&workflow.CreatedAt,
		&workflow.Stats.ExecutionCount,
		&workflow.Stats.SuccessCount,
		&workflow.Stats.FailureCount,
		&workflow.Stats.SuccessRate,
		&workflow.Stats.LastExecutedAt,
		&workflow.NextScheduledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrDuplicateWorkflowTitle)
		}

		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow. Missing or already deleted workflows are not an error.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return nil
	}

	query := `UPDATE workflows SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) ExistsByTitleAndShopID(ctx context.Context, shopID, title, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM workflows
			WHERE shop_id = $1 AND title = $2 AND id::text <> $3 AND deleted_at IS NULL
		)
	`

	var exists bool

	err := r.db.QueryRowContext(ctx, query, shopID, title, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check workflow title: %w", err)
	}

	return exists, nil
}

func (r *WorkflowRepository) ListByShop(ctx context.Context, shopID string) ([]*models.Workflow, error) {
	return r.list(ctx, `
		WHERE shop_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`, shopID)
}

func (r *WorkflowRepository) ListActiveByTrigger(ctx context.Context, shopID string, category models.TriggerCategory, triggerType string) ([]*models.Workflow, error) {
	return r.list(ctx, `
		WHERE shop_id = $1 AND trigger_category = $2 AND trigger_type = $3
		  AND active AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, shopID, string(category), triggerType)
}

func (r *WorkflowRepository) ListActiveByCategory(ctx context.Context, category models.TriggerCategory) ([]*models.Workflow, error) {
	return r.list(ctx, `
		WHERE trigger_category = $1 AND active AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, string(category))
}

func (r *WorkflowRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]*models.Workflow, error) {
	return r.list(ctx, `
		WHERE trigger_category = $1 AND active AND deleted_at IS NULL
		  AND next_scheduled_at IS NOT NULL AND next_scheduled_at <= $2
		ORDER BY next_scheduled_at ASC
	`, string(models.TriggerCategorySchedule), now)
}

func (r *WorkflowRepository) UpdateNextScheduledAt(ctx context.Context, id string, next *time.Time) error {
	if uuid.Validate(id) != nil {
		return persistence.NewWorkflowError("UpdateNextScheduledAt", id, persistence.ErrWorkflowNotFound)
	}

	result, err := r.db.ExecContext(ctx, `UPDATE workflows SET next_scheduled_at = $2 WHERE id = $1`, id, next)
	if err != nil {
		return fmt.Errorf("failed to update next scheduled time: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("UpdateNextScheduledAt", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) list(ctx context.Context, where string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+workflowColumns+` FROM workflows `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow                                      models.Workflow
		category                                      string
		targetingJSON, triggerConfigJSON, actionJSON []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.ShopID,
		&workflow.StaffID,
		&workflow.Title,
		&workflow.Description,
		&targetingJSON,
		&workflow.Trigger.Type,
		&category,
		&triggerConfigJSON,
		&workflow.Action.Type,
		&actionJSON,
		&workflow.Active,
		&workflow.Stats.ExecutionCount,
		&workflow.Stats.SuccessCount,
		&workflow.Stats.FailureCount,
		&workflow.Stats.SuccessRate,
		&workflow.Stats.LastExecutedAt,
		&workflow.NextScheduledAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.Trigger.Category = models.TriggerCategory(category)

	err = json.Unmarshal(targetingJSON, &workflow.Targeting)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal targeting: %w", err)
	}

	err = json.Unmarshal(triggerConfigJSON, &workflow.Trigger.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	err = json.Unmarshal(actionJSON, &workflow.Action.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal action config: %w", err)
	}

	workflow.Targeting.ApplyDefaults()

	return &workflow, nil
}

func marshalConfig(config map[string]any) ([]byte, error) {
	if config == nil {
		config = map[string]any{}
	}

	return json.Marshal(config)
}
