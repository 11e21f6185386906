// Package scheduler drives the time-based workflow triggers and reconciles executions
// left unfinished by a crash.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/salonkit/workflowd/pkg/claims"
	"github.com/salonkit/workflowd/pkg/models"
	"github.com/salonkit/workflowd/pkg/orchestrator"
	"github.com/salonkit/workflowd/pkg/persistence"
	"github.com/salonkit/workflowd/pkg/protocol"
	"github.com/salonkit/workflowd/pkg/registry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMinuteSpec      = "@every 1m"
	DefaultDailySpec       = "0 3 * * *"
	DefaultStaleAfter      = 30 * time.Minute
	DefaultScanConcurrency = 4

	// TimeoutReason is recorded on executions abandoned by the recovery pass.
	TimeoutReason = "execution timed out"

	minuteLease    = "scheduler:minute"
	dailyLease     = "scheduler:daily"
	minuteLeaseTTL = 50 * time.Second
	dailyLeaseTTL  = 23 * time.Hour
)

// Runner is implemented by orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, workflow *models.Workflow, opts orchestrator.RunOptions) (*models.WorkflowExecution, error)
	Abandon(ctx context.Context, execution *models.WorkflowExecution, reason string) error
}

type Scheduler struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	runner     Runner
	registry   *registry.Registry
	claims     claims.Store
	logger     *slog.Logger

	minuteSpec  string
	dailySpec   string
	staleAfter  time.Duration
	concurrency int
	now         func() time.Time

	cron *cron.Cron
}

type Option func(*Scheduler)

func WithSpecs(minute, daily string) Option {
	return func(s *Scheduler) {
		if minute != "" {
			s.minuteSpec = minute
		}

		if daily != "" {
			s.dailySpec = daily
		}
	}
}

func WithStaleAfter(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClaims shares scan leases with other scheduler replicas.
func WithClaims(store claims.Store) Option {
	return func(s *Scheduler) {
		s.claims = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(
	workflows persistence.WorkflowRepository,
	executions persistence.ExecutionRepository,
	runner Runner,
	reg *registry.Registry,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		workflows:   workflows,
		executions:  executions,
		runner:      runner,
		registry:    reg,
		claims:      claims.NewMemoryStore(),
		logger:      logger.With("module", "scheduler"),
		minuteSpec:  DefaultMinuteSpec,
		dailySpec:   DefaultDailySpec,
		staleAfter:  DefaultStaleAfter,
		concurrency: DefaultScanConcurrency,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start registers the minute and daily loops and starts them. Passes that are still
// running when their next tick fires are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	cronLogger := &cronLogger{logger: s.logger}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	_, err := c.AddFunc(s.minuteSpec, func() { s.MinutePass(ctx) })
	if err != nil {
		return fmt.Errorf("invalid minute spec %q: %w", s.minuteSpec, err)
	}

	_, err = c.AddFunc(s.dailySpec, func() { s.DailyPass(ctx) })
	if err != nil {
		return fmt.Errorf("invalid daily spec %q: %w", s.dailySpec, err)
	}

	s.cron = c
	c.Start()

	s.logger.InfoContext(ctx, "Scheduler started", "minute_spec", s.minuteSpec, "daily_spec", s.dailySpec)

	return nil
}

// Stop halts the loops and waits for running passes until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}

	select {
	case <-s.cron.Stop().Done():
		s.logger.InfoContext(ctx, "Scheduler stopped")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Scheduler stopped before passes finished")
	}
}

// MinutePass recovers stale executions, then runs due SCHEDULE workflows.
func (s *Scheduler) MinutePass(ctx context.Context) {
	if !s.lease(ctx, minuteLease, minuteLeaseTTL) {
		return
	}

	_, err := s.RecoverStale(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Recovery pass failed", "error", err)
	}

	err = s.RunScheduledScan(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduled scan failed", "error", err)
	}
}

// DailyPass runs every active PERIODIC workflow.
func (s *Scheduler) DailyPass(ctx context.Context) {
	if !s.lease(ctx, dailyLease, dailyLeaseTTL) {
		return
	}

	err := s.RunPeriodicScan(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Periodic scan failed", "error", err)
	}
}

// lease is held until it expires so that a replica ticking slightly later skips the pass.
func (s *Scheduler) lease(ctx context.Context, key string, ttl time.Duration) bool {
	claimed, err := s.claims.Claim(ctx, key, ttl)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to claim scan lease, scanning anyway", "lease", key, "error", err)

		return true
	}

	if !claimed {
		s.logger.DebugContext(ctx, "Scan lease held elsewhere", "lease", key)
	}

	return claimed
}

// RecoverStale abandons PENDING or RUNNING executions whose last heartbeat is older than
// the stale threshold and returns how many were finalized. Runs that keep heartbeating are
// left alone however long ago they started.
func (s *Scheduler) RecoverStale(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.staleAfter)

	stale, err := s.executions.ListStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale executions: %w", err)
	}

	recovered := 0

	for _, execution := range stale {
		err := s.runner.Abandon(ctx, execution, TimeoutReason)
		if err != nil {
			if !persistence.IsExecutionAlreadyFinalized(err) {
				s.logger.ErrorContext(ctx, "Failed to abandon stale execution",
					"execution_id", execution.ID,
					"workflow_id", execution.WorkflowID,
					"error", err,
				)
			}

			continue
		}

		recovered++
	}

	if recovered > 0 {
		s.logger.InfoContext(ctx, "Recovered stale executions", "count", recovered)
	}

	return recovered, nil
}

// RunScheduledScan runs every active SCHEDULE workflow that is due and advances its next run.
func (s *Scheduler) RunScheduledScan(ctx context.Context) error {
	due, err := s.workflows.ListDueScheduled(ctx, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to list due workflows: %w", err)
	}

	s.runAll(ctx, due, s.runScheduled)

	return nil
}

// RunPeriodicScan runs every active PERIODIC workflow with full target resolution.
func (s *Scheduler) RunPeriodicScan(ctx context.Context) error {
	workflows, err := s.workflows.ListActiveByCategory(ctx, models.TriggerCategoryPeriodic)
	if err != nil {
		return fmt.Errorf("failed to list periodic workflows: %w", err)
	}

	s.runAll(ctx, workflows, func(ctx context.Context, workflow *models.Workflow) error {
		return s.runExclusive(ctx, workflow, models.ExecutionSourcePeriodic)
	})

	return nil
}

func (s *Scheduler) runAll(ctx context.Context, workflows []*models.Workflow, run func(context.Context, *models.Workflow) error) {
	if len(workflows) == 0 {
		return
	}

	s.logger.InfoContext(ctx, "Running workflows", "count", len(workflows))

	var g errgroup.Group

	g.SetLimit(s.concurrency)

	for _, workflow := range workflows {
		g.Go(func() error {
			err := run(ctx, workflow)
			if err != nil && !errors.Is(err, errSkipped) {
				s.logger.ErrorContext(ctx, "Workflow run failed", "workflow_id", workflow.ID, "error", err)
			}

			return nil
		})
	}

	_ = g.Wait()
}

func (s *Scheduler) runScheduled(ctx context.Context, workflow *models.Workflow) error {
	err := s.runExclusive(ctx, workflow, models.ExecutionSourceSchedule)
	if err != nil {
		return err
	}

	next, err := s.nextRun(workflow)
	if err != nil {
		s.logger.ErrorContext(ctx, "Unschedulable trigger, clearing next run", "workflow_id", workflow.ID, "error", err)
	}

	err = s.workflows.UpdateNextScheduledAt(ctx, workflow.ID, next)
	if err != nil {
		return fmt.Errorf("failed to advance next run: %w", err)
	}

	s.logger.DebugContext(ctx, "Advanced next run", "workflow_id", workflow.ID, "next_scheduled_at", next)

	return nil
}

var errSkipped = errors.New("execution in progress")

func (s *Scheduler) runExclusive(ctx context.Context, workflow *models.Workflow, source models.ExecutionSource) error {
	_, err := s.runner.Run(ctx, workflow, orchestrator.RunOptions{Source: source, Exclusive: true})
	if err != nil {
		if persistence.IsExecutionInProgress(err) {
			s.logger.InfoContext(ctx, "Skipping workflow with execution in progress", "workflow_id", workflow.ID)

			return errSkipped
		}

		return err
	}

	return nil
}

// nextRun computes the occurrence after now. One-shot triggers return nil once they ran.
func (s *Scheduler) nextRun(workflow *models.Workflow) (*time.Time, error) {
	trigger, err := s.registry.CreateTrigger(workflow.Trigger)
	if err != nil {
		return nil, err
	}

	scheduled, ok := trigger.(protocol.ScheduledTrigger)
	if !ok {
		return nil, fmt.Errorf("trigger %s is not scheduled", workflow.Trigger.Type)
	}

	return scheduled.NextRun(s.now().UTC()), nil
}
