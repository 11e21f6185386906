package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/persistence"
	"github.com/salonkit/workflowd/pkg/protocol"
	"github.com/salonkit/workflowd/pkg/registry"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

const defaultExecutionsLimit = 20

// Caller identifies the staff member issuing a command and the shop they act in.
type Caller struct {
	ShopID  string
	StaffID string
}

func (c Caller) validate() error {
	if strings.TrimSpace(c.ShopID) == "" || strings.TrimSpace(c.StaffID) == "" {
		return ErrCallerRequired
	}

	return nil
}

type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, reg *registry.Registry, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    reg,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "workflow_service"),
		now:         time.Now,
	}
}

// WithClock replaces the clock used for schedule computation and monthly stats.
func (w *Workflow) WithClock(now func() time.Time) *Workflow {
	w.now = now

	return w
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// FetchByID retrieves a workflow of the caller's shop. Workflows of other shops are reported
// as not found.
func (w *Workflow) FetchByID(ctx context.Context, shopID, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow: %w", err)
	}

	if workflow == nil || workflow.ShopID != shopID {
		return nil, persistence.NewWorkflowError("FetchByID", id, ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (w *Workflow) ListByShop(ctx context.Context, shopID string) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().ListByShop(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// Create validates and stores a new active workflow owned by the caller.
func (w *Workflow) Create(ctx context.Context, caller Caller, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	err := caller.validate()
	if err != nil {
		return nil, err
	}

	workflow.ID = ""
	workflow.ShopID = caller.ShopID
	workflow.StaffID = caller.StaffID
	workflow.Active = true
	workflow.Stats = models.WorkflowStats{}
	workflow.DeletedAt = nil

	err = w.prepare(ctx, "Create", workflow)
	if err != nil {
		return nil, err
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, w.saveError("create", err)
	}

	w.logger.InfoContext(ctx, "Workflow created",
		"workflow_id", workflow.ID,
		"shop_id", workflow.ShopID,
		"trigger_type", workflow.Trigger.Type,
	)

	return workflow, nil
}

// Update replaces the descriptive, targeting, trigger and action parts of a workflow the
// caller owns. Activation, statistics and ownership are kept.
func (w *Workflow) Update(ctx context.Context, caller Caller, id string, changes *models.Workflow) (*models.Workflow, error) {
	if changes == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Title = changes.Title
	updated.Description = changes.Description
	updated.Targeting = changes.Targeting
	updated.Trigger = changes.Trigger
	updated.Action = changes.Action

	err = w.prepare(ctx, "Update", &updated)
	if err != nil {
		return nil, err
	}

	next := updated.NextScheduledAt

	err = w.persistence.WorkflowRepository().Save(ctx, &updated)
	if err != nil {
		return nil, w.saveError("update", err)
	}

	err = w.persistence.WorkflowRepository().UpdateNextScheduledAt(ctx, updated.ID, next)
	if err != nil {
		return nil, fmt.Errorf("failed to reschedule workflow: %w", err)
	}

	updated.NextScheduledAt = next

	return &updated, nil
}

// SetActive toggles whether the workflow may start executions. Reactivating a SCHEDULE
// workflow whose next run already passed schedules it from now.
func (w *Workflow) SetActive(ctx context.Context, caller Caller, id string, active bool) (*models.Workflow, error) {
	workflow, err := w.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if workflow.Active == active {
		return workflow, nil
	}

	workflow.Active = active

	reschedule := active && workflow.Trigger.Category == models.TriggerCategorySchedule &&
		(workflow.NextScheduledAt == nil || workflow.NextScheduledAt.Before(w.now().UTC()))
	if reschedule {
		err = w.schedule(workflow)
		if err != nil {
			return nil, err
		}
	}

	next := workflow.NextScheduledAt

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, w.saveError("update", err)
	}

	if reschedule {
		err = w.persistence.WorkflowRepository().UpdateNextScheduledAt(ctx, workflow.ID, next)
		if err != nil {
			return nil, fmt.Errorf("failed to reschedule workflow: %w", err)
		}

		workflow.NextScheduledAt = next
	}

	w.logger.InfoContext(ctx, "Workflow activation changed", "workflow_id", id, "active", active)

	return workflow, nil
}

// Delete soft deletes a workflow the caller owns. Its title becomes available again.
func (w *Workflow) Delete(ctx context.Context, caller Caller, id string) error {
	_, err := w.owned(ctx, caller, id)
	if err != nil {
		return err
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", id, "shop_id", caller.ShopID)

	return nil
}

// ListExecutions returns the workflow's executions, newest first.
func (w *Workflow) ListExecutions(ctx context.Context, shopID, id string, limit int) ([]*models.WorkflowExecution, error) {
	if limit == 0 {
		limit = defaultExecutionsLimit
	}

	if limit < 1 || limit > 100 {
		return nil, ErrInvalidExecutionsCap
	}

	_, err := w.FetchByID(ctx, shopID, id)
	if err != nil {
		return nil, err
	}

	executions, err := w.persistence.ExecutionRepository().ListByWorkflow(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// GetWorkflowStats summarizes the shop's workflows and this month's executions.
// The average success rate only counts workflows that executed at least once.
func (w *Workflow) GetWorkflowStats(ctx context.Context, shopID string) (models.ShopWorkflowStats, error) {
	workflows, err := w.ListByShop(ctx, shopID)
	if err != nil {
		return models.ShopWorkflowStats{}, err
	}

	now := w.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	summary, err := w.persistence.ExecutionRepository().Summarize(ctx, shopID, monthStart)
	if err != nil {
		return models.ShopWorkflowStats{}, fmt.Errorf("failed to summarize executions: %w", err)
	}

	stats := models.ShopWorkflowStats{
		Total:             len(workflows),
		MonthlyExecutions: summary.Total,
		MonthlySuccess:    summary.Succeeded,
		MonthlyFailure:    summary.Failed + summary.PartiallyFailed,
	}

	var (
		rateSum  float64
		executed int
	)

	for _, workflow := range workflows {
		if workflow.Active {
			stats.Active++
		} else {
			stats.Inactive++
		}

		if workflow.Stats.ExecutionCount > 0 {
			rateSum += workflow.Stats.SuccessRate
			executed++
		}
	}

	if executed > 0 {
		stats.AvgSuccessRate = rateSum / float64(executed)
	}

	return stats, nil
}

// owned loads a workflow of the caller's shop and checks the caller owns it.
func (w *Workflow) owned(ctx context.Context, caller Caller, id string) (*models.Workflow, error) {
	err := caller.validate()
	if err != nil {
		return nil, err
	}

	workflow, err := w.FetchByID(ctx, caller.ShopID, id)
	if err != nil {
		return nil, err
	}

	if workflow.StaffID != caller.StaffID {
		return nil, &ServiceError{Op: "owned", Code: "NOT_WORKFLOW_OWNER", Err: ErrNotWorkflowOwner}
	}

	return workflow, nil
}

// prepare validates the workflow, fills the trigger category, checks the configs against
// the registry, checks title uniqueness and computes the first scheduled run.
func (w *Workflow) prepare(ctx context.Context, op string, workflow *models.Workflow) error {
	workflow.Title = strings.TrimSpace(workflow.Title)

	if workflow.Trigger.Category == "" && workflow.Trigger.Type != "" {
		category, err := w.registry.TriggerCategory(workflow.Trigger.Type)
		if err != nil {
			return NewValidationError(op, "INVALID_TRIGGER", err.Error(), ErrInvalidTrigger)
		}

		workflow.Trigger.Category = category
	}

	err := w.validator.Struct(workflow)
	if err != nil {
		return NewValidationError(op, "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	_, err = w.registry.CreateTrigger(workflow.Trigger)
	if err != nil {
		return NewValidationError(op, "INVALID_TRIGGER", err.Error(), errors.Join(ErrInvalidTrigger, err))
	}

	_, err = w.registry.CreateAction(workflow.Action)
	if err != nil {
		return NewValidationError(op, "INVALID_ACTION", err.Error(), errors.Join(ErrInvalidAction, err))
	}

	exists, err := w.persistence.WorkflowRepository().ExistsByTitleAndShopID(ctx, workflow.ShopID, workflow.Title, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to check title uniqueness: %w", err)
	}

	if exists {
		return &ServiceError{Op: op, Code: "DUPLICATE_TITLE", Message: "title '" + workflow.Title + "' is taken", Err: ErrDuplicateTitle}
	}

	workflow.NextScheduledAt = nil

	if workflow.Trigger.Category == models.TriggerCategorySchedule {
		return w.schedule(workflow)
	}

	return nil
}

func (w *Workflow) schedule(workflow *models.Workflow) error {
	trigger, err := w.registry.CreateTrigger(workflow.Trigger)
	if err != nil {
		return NewValidationError("schedule", "INVALID_TRIGGER", err.Error(), errors.Join(ErrInvalidTrigger, err))
	}

	scheduled, ok := trigger.(protocol.ScheduledTrigger)
	if !ok {
		return NewValidationError("schedule", "INVALID_TRIGGER", "trigger is not time based", ErrInvalidTrigger)
	}

	next := scheduled.NextRun(w.now().UTC())
	if next == nil {
		return NewValidationError("schedule", "SCHEDULE_NEVER_FIRES", "schedule has no future occurrence", ErrScheduleNeverFires)
	}

	workflow.NextScheduledAt = next

	return nil
}

func (w *Workflow) saveError(op string, err error) error {
	if persistence.IsDuplicateWorkflowTitle(err) {
		return &ServiceError{Op: op, Code: "DUPLICATE_TITLE", Err: ErrDuplicateTitle}
	}

	return fmt.Errorf("failed to %s workflow: %w", op, err)
}
