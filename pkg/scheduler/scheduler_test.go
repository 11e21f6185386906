package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/salonkit/workflowd/pkg/actions"
	"github.com/salonkit/workflowd/pkg/claims"
	"github.com/salonkit/workflowd/pkg/mocks"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/orchestrator"
	"github.com/salonkit/workflowd/pkg/persistence"
	"github.com/salonkit/workflowd/pkg/persistence/file"
	"github.com/salonkit/workflowd/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 30, 0, time.UTC)

func clock() time.Time { return testNow }

type emptyResolver struct{}

func (emptyResolver) ResolveTargets(context.Context, *models.Workflow) ([]string, error) {
	return []string{}, nil
}

func (emptyResolver) FilterByTriggerConditions(_ context.Context, candidates []string, _ *models.Workflow, _ models.LifecycleEvent) ([]string, error) {
	return candidates, nil
}

type fixture struct {
	store     persistence.Persistence
	registry  *registry.Registry
	scheduler *Scheduler
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaults(&mocks.MockDispatcher{})

	orch := orchestrator.New(
		store.ExecutionRepository(),
		emptyResolver{},
		actions.NewExecutor(reg, slog.Default()),
		slog.Default(),
		orchestrator.WithClock(clock),
	)

	opts = append([]Option{WithClock(clock)}, opts...)

	return &fixture{
		store:     store,
		registry:  reg,
		scheduler: New(store.WorkflowRepository(), store.ExecutionRepository(), orch, reg, slog.Default(), opts...),
	}
}

func (f *fixture) save(t *testing.T, workflow *models.Workflow) *models.Workflow {
	t.Helper()

	workflow.ShopID = "shop-1"
	workflow.StaffID = "staff-1"
	workflow.Active = true
	workflow.Action = models.Action{Type: models.ActionTypeSendMessage, Config: map[string]any{"template_id": "tpl"}}
	require.NoError(t, f.store.WorkflowRepository().Save(t.Context(), workflow))

	return workflow
}

func (f *fixture) executions(t *testing.T, workflowID string) []*models.WorkflowExecution {
	t.Helper()

	executions, err := f.store.ExecutionRepository().ListByWorkflow(t.Context(), workflowID, 100)
	require.NoError(t, err)

	return executions
}

func (f *fixture) reload(t *testing.T, id string) *models.Workflow {
	t.Helper()

	workflow, err := f.store.WorkflowRepository().GetByID(t.Context(), id)
	require.NoError(t, err)
	require.NotNil(t, workflow)

	return workflow
}

func scheduled(title string, config map[string]any, next time.Time) *models.Workflow {
	return &models.Workflow{
		Title:           title,
		Trigger:         models.Trigger{Type: models.TriggerTypeScheduled, Category: models.TriggerCategorySchedule, Config: config},
		NextScheduledAt: &next,
	}
}

func periodic(title string) *models.Workflow {
	return &models.Workflow{
		Title: title,
		Trigger: models.Trigger{
			Type:     models.TriggerTypeInactiveCustomers,
			Category: models.TriggerCategoryPeriodic,
			Config:   map[string]any{"inactive_days": 30},
		},
	}
}

func TestRunScheduledScan_AdvancesCronWorkflow(t *testing.T) {
	f := setup(t)
	workflow := f.save(t, scheduled("daily ten", map[string]any{"cron": "0 10 * * *"}, testNow.Add(-30*time.Second)))

	require.NoError(t, f.scheduler.RunScheduledScan(t.Context()))

	executions := f.executions(t, workflow.ID)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionSourceSchedule, executions[0].Source)
	assert.Equal(t, models.ExecutionStatusSucceeded, executions[0].Status)

	next := f.reload(t, workflow.ID).NextScheduledAt
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC), next.UTC())
}

func TestRunScheduledScan_OneShotClearsNextRun(t *testing.T) {
	f := setup(t)
	workflow := f.save(t, scheduled("launch", map[string]any{"run_at": "2025-06-15T09:00:00Z"}, testNow.Add(-time.Hour)))

	require.NoError(t, f.scheduler.RunScheduledScan(t.Context()))

	assert.Len(t, f.executions(t, workflow.ID), 1)
	assert.Nil(t, f.reload(t, workflow.ID).NextScheduledAt)
}

func TestRunScheduledScan_IgnoresWorkflowsNotDue(t *testing.T) {
	f := setup(t)
	workflow := f.save(t, scheduled("later", map[string]any{"cron": "0 18 * * *"}, testNow.Add(8*time.Hour)))

	require.NoError(t, f.scheduler.RunScheduledScan(t.Context()))

	assert.Empty(t, f.executions(t, workflow.ID))
}

func TestRunScheduledScan_SkipsWorkflowInProgress(t *testing.T) {
	f := setup(t)
	due := testNow.Add(-30 * time.Second)
	workflow := f.save(t, scheduled("busy", map[string]any{"cron": "0 10 * * *"}, due))

	inFlight := models.NewExecution("in-flight", workflow, models.ExecutionSourceManual, testNow.Add(-time.Minute))
	require.NoError(t, f.store.ExecutionRepository().Create(t.Context(), inFlight, persistence.CreateExecutionOptions{}))

	require.NoError(t, f.scheduler.RunScheduledScan(t.Context()))

	executions := f.executions(t, workflow.ID)
	require.Len(t, executions, 1)
	assert.Equal(t, "in-flight", executions[0].ID)

	next := f.reload(t, workflow.ID).NextScheduledAt
	require.NotNil(t, next)
	assert.True(t, next.Equal(due), "next run must be kept for the next pass")
}

func TestRecoverStale(t *testing.T) {
	f := setup(t)
	workflow := f.save(t, periodic("cohort"))

	stale := models.NewExecution("stale", workflow, models.ExecutionSourcePeriodic, testNow.Add(-31*time.Minute))
	fresh := models.NewExecution("fresh", workflow, models.ExecutionSourceEvent, testNow.Add(-5*time.Minute))

	for _, execution := range []*models.WorkflowExecution{stale, fresh} {
		require.NoError(t, f.store.ExecutionRepository().Create(t.Context(), execution, persistence.CreateExecutionOptions{}))
	}

	recovered, err := f.scheduler.RecoverStale(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	stored, err := f.store.ExecutionRepository().GetByID(t.Context(), "stale")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, TimeoutReason, stored.ErrorSummary)
	assert.NotNil(t, stored.FinishedAt)

	stored, err = f.store.ExecutionRepository().GetByID(t.Context(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, stored.Status)

	assert.Equal(t, int64(1), f.reload(t, workflow.ID).Stats.ExecutionCount)
}

func TestRecoverStale_SkipsRunsWithRecentHeartbeat(t *testing.T) {
	f := setup(t)
	workflow := f.save(t, periodic("cohort"))

	started := testNow.Add(-2 * time.Hour)
	execution := models.NewExecution("long-run", workflow, models.ExecutionSourcePeriodic, started)
	require.NoError(t, f.store.ExecutionRepository().Create(t.Context(), execution, persistence.CreateExecutionOptions{}))
	require.NoError(t, execution.Start(started))
	require.NoError(t, f.store.ExecutionRepository().MarkRunning(t.Context(), execution))
	require.NoError(t, f.store.ExecutionRepository().Heartbeat(t.Context(), execution.ID, testNow.Add(-time.Minute)))

	recovered, err := f.scheduler.RecoverStale(t.Context())
	require.NoError(t, err)
	assert.Zero(t, recovered)

	stored, err := f.store.ExecutionRepository().GetByID(t.Context(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, stored.Status)
	assert.Zero(t, f.reload(t, workflow.ID).Stats.ExecutionCount)
}

func TestRecoverStale_StaleAfterOption(t *testing.T) {
	f := setup(t, WithStaleAfter(2*time.Minute))
	workflow := f.save(t, periodic("cohort"))

	execution := models.NewExecution("old", workflow, models.ExecutionSourcePeriodic, testNow.Add(-5*time.Minute))
	require.NoError(t, f.store.ExecutionRepository().Create(t.Context(), execution, persistence.CreateExecutionOptions{}))

	recovered, err := f.scheduler.RecoverStale(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
}

func TestRunPeriodicScan(t *testing.T) {
	f := setup(t)
	first := f.save(t, periodic("thirty days"))
	second := f.save(t, periodic("sixty days"))
	other := f.save(t, scheduled("not periodic", map[string]any{"cron": "0 10 * * *"}, testNow.Add(-time.Minute)))

	require.NoError(t, f.scheduler.RunPeriodicScan(t.Context()))

	for _, workflow := range []*models.Workflow{first, second} {
		executions := f.executions(t, workflow.ID)
		require.Len(t, executions, 1)
		assert.Equal(t, models.ExecutionSourcePeriodic, executions[0].Source)
	}

	assert.Empty(t, f.executions(t, other.ID))
}

type countingRunner struct {
	mu   sync.Mutex
	runs map[string]int
	fail map[string]bool
}

func newCountingRunner() *countingRunner {
	return &countingRunner{runs: map[string]int{}, fail: map[string]bool{}}
}

func (r *countingRunner) Run(_ context.Context, workflow *models.Workflow, opts orchestrator.RunOptions) (*models.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[workflow.Title]++

	if r.fail[workflow.Title] {
		return nil, errors.New("store unavailable")
	}

	return models.NewExecution("exec-"+workflow.Title, workflow, opts.Source, testNow), nil
}

func (r *countingRunner) Abandon(context.Context, *models.WorkflowExecution, string) error {
	return nil
}

func (r *countingRunner) count(title string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.runs[title]
}

func TestDailyPass_LeaseKeepsReplicasFromDoubleScanning(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaults(&mocks.MockDispatcher{})

	require.NoError(t, store.WorkflowRepository().Save(t.Context(), &models.Workflow{
		ShopID:  "shop-1",
		StaffID: "staff-1",
		Title:   "cohort",
		Active:  true,
		Trigger: periodic("cohort").Trigger,
	}))

	leases := claims.NewMemoryStore()
	runner := newCountingRunner()

	replicaA := New(store.WorkflowRepository(), store.ExecutionRepository(), runner, reg, slog.Default(), WithClaims(leases))
	replicaB := New(store.WorkflowRepository(), store.ExecutionRepository(), runner, reg, slog.Default(), WithClaims(leases))

	replicaA.DailyPass(t.Context())
	replicaB.DailyPass(t.Context())

	assert.Equal(t, 1, runner.count("cohort"))
}

func TestRunPeriodicScan_FailureIsIsolated(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	reg := registry.NewRegistry(slog.Default())

	for _, title := range []string{"broken", "healthy"} {
		require.NoError(t, store.WorkflowRepository().Save(t.Context(), &models.Workflow{
			ShopID:  "shop-1",
			StaffID: "staff-1",
			Title:   title,
			Active:  true,
			Trigger: periodic(title).Trigger,
		}))
	}

	runner := newCountingRunner()
	runner.fail["broken"] = true

	s := New(store.WorkflowRepository(), store.ExecutionRepository(), runner, reg, slog.Default(), WithConcurrency(1))
	require.NoError(t, s.RunPeriodicScan(t.Context()))

	assert.Equal(t, 1, runner.count("broken"))
	assert.Equal(t, 1, runner.count("healthy"))
}

func TestMinutePass_RecoveryFailureDoesNotBlockScan(t *testing.T) {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaults(&mocks.MockDispatcher{})

	workflow := scheduled("daily ten", map[string]any{"cron": "0 10 * * *"}, testNow.Add(-30*time.Second))
	workflow.ID = "wf-1"

	workflows := &mocks.MockWorkflowRepository{}
	workflows.On("ListDueScheduled", mock.Anything, testNow).Return([]*models.Workflow{workflow}, nil)
	workflows.On("UpdateNextScheduledAt", mock.Anything, "wf-1", mock.MatchedBy(func(next *time.Time) bool {
		return next != nil && next.Equal(time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC))
	})).Return(nil)

	executions := &mocks.MockExecutionRepository{}
	executions.On("ListStale", mock.Anything, testNow.Add(-DefaultStaleAfter)).Return(nil, errors.New("connection reset"))

	runner := newCountingRunner()
	s := New(workflows, executions, runner, reg, slog.Default(), WithClock(clock))

	s.MinutePass(t.Context())

	assert.Equal(t, 1, runner.count("daily ten"))
	workflows.AssertExpectations(t)
	executions.AssertExpectations(t)
}

func TestStart_InvalidSpec(t *testing.T) {
	tests := []struct {
		name   string
		minute string
		daily  string
	}{
		{name: "minute", minute: "every minute"},
		{name: "daily", daily: "61 3 * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, WithSpecs(tt.minute, tt.daily))
			require.Error(t, f.scheduler.Start(t.Context()))
		})
	}
}

func TestStartStop(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.scheduler.Start(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	f.scheduler.Stop(ctx)
}
