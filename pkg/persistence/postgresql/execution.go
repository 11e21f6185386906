package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/persistence"
)

const executionColumns = `
			id
		  , workflow_id
		  , shop_id
		  , source
		  , status
		  , target_count
		  , success_count
		  , failure_count
		  , error_summary
		  , created_at
		  , started_at
		  , finished_at
		  , heartbeat_at`

// ExecutionRepository handles the execution log.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a PENDING execution. Inserts for the same workflow are serialized by
// a transaction-scoped advisory lock so the exclusive check cannot race.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution, opts persistence.CreateExecutionOptions) error {
	if execution.Status != models.ExecutionStatusPending {
		return persistence.NewExecutionError("Create", execution.ID, execution.WorkflowID, persistence.ErrInvalidExecutionTransition)
	}

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, execution.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to acquire workflow lock: %w", err)
	}

	if opts.Exclusive {
		var unfinished bool

		err = tx.QueryRowContext(ctx, unfinishedQuery, execution.WorkflowID).Scan(&unfinished)
		if err != nil {
			return fmt.Errorf("failed to check unfinished executions: %w", err)
		}

		if unfinished {
			return persistence.NewExecutionError("Create", execution.ID, execution.WorkflowID, persistence.ErrExecutionInProgress)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_executions (
			id, workflow_id, shop_id, source, status,
			target_count, success_count, failure_count, error_summary,
			created_at, started_at, finished_at, heartbeat_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		execution.ID,
		execution.WorkflowID,
		execution.ShopID,
		string(execution.Source),
		string(execution.Status),
		execution.TargetCount,
		execution.SuccessCount,
		execution.FailureCount,
		execution.ErrorSummary,
		execution.CreatedAt,
		execution.StartedAt,
		execution.FinishedAt,
		execution.HeartbeatAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit execution: %w", err)
	}

	return nil
}

// MarkRunning persists the PENDING to RUNNING transition.
func (r *ExecutionRepository) MarkRunning(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.Status != models.ExecutionStatusRunning {
		return persistence.NewExecutionError("MarkRunning", execution.ID, execution.WorkflowID, persistence.ErrInvalidExecutionTransition)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_executions SET status = $2, started_at = $3, heartbeat_at = COALESCE($4, $3)
		WHERE id = $1 AND status = 'PENDING'
	`, execution.ID, string(execution.Status), execution.StartedAt, execution.HeartbeatAt)
	if err != nil {
		return fmt.Errorf("failed to mark execution running: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return r.missingOr(ctx, "MarkRunning", execution, persistence.ErrInvalidExecutionTransition)
	}

	return nil
}

// Heartbeat refreshes heartbeat_at of an unfinished execution.
func (r *ExecutionRepository) Heartbeat(ctx context.Context, id string, at time.Time) error {
	if uuid.Validate(id) != nil {
		return persistence.NewExecutionError("Heartbeat", id, "", persistence.ErrExecutionNotFound)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_executions SET heartbeat_at = $2
		WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to record execution heartbeat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return r.missingOr(ctx, "Heartbeat", &models.WorkflowExecution{ID: id}, persistence.ErrExecutionAlreadyFinalized)
	}

	return nil
}

// Finalize stores the terminal execution and folds its counts into the workflow
// statistics in one transaction. Counters are incremented in SQL so concurrent
// finalizations of the same workflow never lose updates.
func (r *ExecutionRepository) Finalize(ctx context.Context, execution *models.WorkflowExecution) error {
	if !execution.Status.IsTerminal() {
		return persistence.NewExecutionError("Finalize", execution.ID, execution.WorkflowID, persistence.ErrInvalidExecutionTransition)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE workflow_executions SET
			status = $2,
			target_count = $3,
			success_count = $4,
			failure_count = $5,
			error_summary = $6,
			started_at = $7,
			finished_at = $8
		WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
	`,
		execution.ID,
		string(execution.Status),
		execution.TargetCount,
		execution.SuccessCount,
		execution.FailureCount,
		execution.ErrorSummary,
		execution.StartedAt,
		execution.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return r.missingOr(ctx, "Finalize", execution, persistence.ErrExecutionAlreadyFinalized)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE workflows SET
			execution_count = execution_count + 1,
			success_count = success_count + $2,
			failure_count = failure_count + $3,
			success_rate = CASE
				WHEN success_count + $2 + failure_count + $3 = 0 THEN 0
				ELSE (success_count + $2) * 100.0 / (success_count + $2 + failure_count + $3)
			END,
			last_executed_at = COALESCE($4, last_executed_at)
		WHERE id = $1
	`, execution.WorkflowID, execution.SuccessCount, execution.FailureCount, execution.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to update workflow statistics: %w", err)
	}

	affected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Finalize", execution.ID, execution.WorkflowID, persistence.ErrWorkflowNotFound)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit finalization: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	if uuid.Validate(id) != nil {
		return nil, nil
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	if uuid.Validate(workflowID) != nil {
		return []*models.WorkflowExecution{}, nil
	}

	if limit <= 0 {
		return r.list(ctx, `WHERE workflow_id = $1 ORDER BY created_at DESC`, workflowID)
	}

	return r.list(ctx, `WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT $2`, workflowID, limit)
}

// ListStale judges liveness by the latest of heartbeat, start and creation that was recorded.
func (r *ExecutionRepository) ListStale(ctx context.Context, lastSeenBefore time.Time) ([]*models.WorkflowExecution, error) {
	return r.list(ctx, `
		WHERE status IN ('PENDING', 'RUNNING')
		  AND COALESCE(heartbeat_at, started_at, created_at) < $1
		ORDER BY created_at ASC
	`, lastSeenBefore)
}

const unfinishedQuery = `
	SELECT EXISTS (
		SELECT 1 FROM workflow_executions
		WHERE workflow_id = $1 AND status IN ('PENDING', 'RUNNING')
	)
`

func (r *ExecutionRepository) HasUnfinished(ctx context.Context, workflowID string) (bool, error) {
	if uuid.Validate(workflowID) != nil {
		return false, nil
	}

	var unfinished bool

	err := r.db.QueryRowContext(ctx, unfinishedQuery, workflowID).Scan(&unfinished)
	if err != nil {
		return false, fmt.Errorf("failed to check unfinished executions: %w", err)
	}

	return unfinished, nil
}

func (r *ExecutionRepository) Summarize(ctx context.Context, shopID string, since time.Time) (models.ExecutionSummary, error) {
	var summary models.ExecutionSummary

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)
		  , COUNT(*) FILTER (WHERE status = 'SUCCEEDED')
		  , COUNT(*) FILTER (WHERE status = 'PARTIALLY_FAILED')
		  , COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM workflow_executions
		WHERE shop_id = $1 AND created_at >= $2
	`, shopID, since).Scan(&summary.Total, &summary.Succeeded, &summary.PartiallyFailed, &summary.Failed)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize executions: %w", err)
	}

	return summary, nil
}

// missingOr reports ErrExecutionNotFound when the row is absent and fallback otherwise.
func (r *ExecutionRepository) missingOr(ctx context.Context, op string, execution *models.WorkflowExecution, fallback error) error {
	stored, err := r.GetByID(ctx, execution.ID)
	if err != nil {
		return err
	}

	if stored == nil {
		return persistence.NewExecutionError(op, execution.ID, execution.WorkflowID, persistence.ErrExecutionNotFound)
	}

	return persistence.NewExecutionError(op, execution.ID, execution.WorkflowID, fallback)
}

func (r *ExecutionRepository) list(ctx context.Context, where string, args ...any) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+executionColumns+` FROM workflow_executions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution      models.WorkflowExecution
		source, status string
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.ShopID,
		&source,
		&status,
		&execution.TargetCount,
		&execution.SuccessCount,
		&execution.FailureCount,
		&execution.ErrorSummary,
		&execution.CreatedAt,
		&execution.StartedAt,
		&execution.FinishedAt,
		&execution.HeartbeatAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Source = models.ExecutionSource(source)
	execution.Status = models.ExecutionStatus(status)

	return &execution, nil
}
