package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/salonkit/workflowd/pkg/cmd"
	"github.com/salonkit/workflowd/pkg/log"
	"github.com/salonkit/workflowd/pkg/outbox"
	"github.com/salonkit/workflowd/pkg/trigger"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "workflowd-worker",
		EnableShellCompletion: true,
		Usage:                 "Evaluate lifecycle events, run requested workflows and relay the outbox",
		Flags: cmd.Flags(cmd.CommonFlags(), cmd.ExecutionFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.DurationFlag{
				Name:    "outbox-interval",
				Usage:   "How often pending outbox messages are relayed",
				Value:   outbox.DefaultInterval,
				Sources: cli.EnvVars("OUTBOX_INTERVAL"),
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("workflowd-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing workflowd worker")

			engine, err := cmd.NewEngine(ctx, command, "workflowd-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := engine.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close engine", "error", err)
				}
			}()

			evaluator := trigger.NewEvaluator(
				engine.Persistence.WorkflowRepository(),
				engine.Resolver,
				engine.Orchestrator,
				engine.Tracer,
				logger,
			)

			relay := outbox.NewRelay(
				engine.Persistence.OutboxRepository(),
				engine.EventBus,
				logger,
				outbox.WithInterval(command.Duration("outbox-interval")),
				outbox.WithClaims(engine.Claims),
			)

			if command.String("redis-url") == "" {
				logger.WarnContext(ctx, "No redis-url configured, the outbox relay lease is process local; run a single worker replica")
			}

			cmd.ServeMetrics(ctx, command.Int("metrics-port"), engine.Metrics, logger)

			worker := NewWorkerManager(
				workerID,
				engine.Persistence.WorkflowRepository(),
				engine.Orchestrator,
				evaluator,
				relay,
				engine.EventBus,
				logger,
			)

			return worker.Start(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("workflowd-worker").Error("Worker exited", "error", err)
		os.Exit(1)
	}
}
