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

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *jsonStore
	mu    *sync.Mutex
}

// GetByID returns the workflow, or nil when it does not exist or was deleted.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.load(id)
	if err != nil || workflow == nil || workflow.IsDeleted() {
		return nil, err
	}

	return workflow, nil
}

// Save creates or updates a workflow. Statistics and the next scheduled run already on
// disk are kept: only execution finalization and UpdateNextScheduledAt write them.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	now := time.Now().UTC()

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	existing, err := wr.load(workflow.ID)
	if err != nil {
		return err
	}

	if existing != nil {
		workflow.Stats = existing.Stats
		workflow.NextScheduledAt = existing.NextScheduledAt
		workflow.CreatedAt = existing.CreatedAt
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return wr.store.write(workflowsDir, workflow.ID, workflow)
}

// Delete soft deletes a workflow. Missing or already deleted workflows are not an error.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.load(id)
	if err != nil {
		return err
	}

	if workflow == nil || workflow.IsDeleted() {
		return nil
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now
	workflow.UpdatedAt = now

	return wr.store.write(workflowsDir, id, workflow)
}

func (wr *WorkflowRepository) ExistsByTitleAndShopID(_ context.Context, shopID, title, excludeID string) (bool, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflows, err := wr.all(func(w *models.Workflow) bool {
		return w.ShopID == shopID && w.Title == title && w.ID != excludeID
	})
	if err != nil {
		return false, err
	}

	return len(workflows) > 0, nil
}

func (wr *WorkflowRepository) ListByShop(_ context.Context, shopID string) ([]*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflows, err := wr.all(func(w *models.Workflow) bool { return w.ShopID == shopID })
	if err != nil {
		return nil, err
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (wr *WorkflowRepository) ListActiveByTrigger(_ context.Context, shopID string, category models.TriggerCategory, triggerType string) ([]*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflows, err := wr.all(func(w *models.Workflow) bool {
		return w.Active && w.ShopID == shopID && w.Trigger.Category == category && w.Trigger.Type == triggerType
	})
	if err != nil {
		return nil, err
	}

	sortByCreation(workflows)

	return workflows, nil
}

func (wr *WorkflowRepository) ListActiveByCategory(_ context.Context, category models.TriggerCategory) ([]*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflows, err := wr.all(func(w *models.Workflow) bool {
		return w.Active && w.Trigger.Category == category
	})
	if err != nil {
		return nil, err
	}

	sortByCreation(workflows)

	return workflows, nil
}

// ListDueScheduled returns active SCHEDULE workflows whose next run is at or before now.
func (wr *WorkflowRepository) ListDueScheduled(_ context.Context, now time.Time) ([]*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflows, err := wr.all(func(w *models.Workflow) bool {
		return w.Active &&
			w.Trigger.Category == models.TriggerCategorySchedule &&
			w.NextScheduledAt != nil &&
			!w.NextScheduledAt.After(now)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].NextScheduledAt.Before(*workflows[j].NextScheduledAt)
	})

	return workflows, nil
}

func (wr *WorkflowRepository) UpdateNextScheduledAt(_ context.Context, id string, next *time.Time) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.load(id)
	if err != nil {
		return err
	}

	if workflow == nil {
		return persistence.NewWorkflowError("UpdateNextScheduledAt", id, persistence.ErrWorkflowNotFound)
	}

	workflow.NextScheduledAt = next

	return wr.store.write(workflowsDir, id, workflow)
}

// load reads a workflow including soft-deleted ones. Callers hold the mutex.
func (wr *WorkflowRepository) load(id string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := wr.store.read(workflowsDir, id, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	if !found {
		return nil, nil
	}

	return &workflow, nil
}

// all returns non-deleted workflows accepted by keep. Callers hold the mutex.
func (wr *WorkflowRepository) all(keep func(*models.Workflow) bool) ([]*models.Workflow, error) {
	ids, err := wr.store.ids(workflowsDir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := wr.load(id)
		if err != nil {
			return nil, err
		}

		if workflow == nil || workflow.IsDeleted() || !keep(workflow) {
			continue
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func sortByCreation(workflows []*models.Workflow) {
	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})
}
