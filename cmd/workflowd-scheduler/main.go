package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/salonkit/workflowd/pkg/cmd"
	"github.com/salonkit/workflowd/pkg/log"
	"github.com/salonkit/workflowd/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	command := &cli.Command{
		Name:                  "workflowd-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Run due scheduled workflows, daily cohort checks and stale execution recovery",
		Flags: cmd.Flags(cmd.CommonFlags(), cmd.ExecutionFlags(), []cli.Flag{
			&cli.DurationFlag{
				Name:    "stale-after",
				Usage:   "Age after which an unfinished execution is abandoned",
				Value:   scheduler.DefaultStaleAfter,
				Sources: cli.EnvVars("STALE_AFTER"),
			},
			&cli.StringFlag{
				Name:    "minute-spec",
				Usage:   "Cron spec of the recovery and scheduled scan pass",
				Value:   scheduler.DefaultMinuteSpec,
				Sources: cli.EnvVars("MINUTE_SPEC"),
			},
			&cli.StringFlag{
				Name:    "daily-spec",
				Usage:   "Cron spec (UTC) of the periodic cohort pass",
				Value:   scheduler.DefaultDailySpec,
				Sources: cli.EnvVars("DAILY_SPEC"),
			},
			&cli.IntFlag{
				Name:    "scan-concurrency",
				Usage:   "Workflows run concurrently within one pass",
				Value:   scheduler.DefaultScanConcurrency,
				Sources: cli.EnvVars("SCAN_CONCURRENCY"),
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := log.WithModule("workflowd-scheduler")

			logger.InfoContext(ctx, "Initializing workflowd scheduler")

			engine, err := cmd.NewEngine(ctx, command, "workflowd-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := engine.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close engine", "error", err)
				}
			}()

			s := scheduler.New(
				engine.Persistence.WorkflowRepository(),
				engine.Persistence.ExecutionRepository(),
				engine.Orchestrator,
				engine.Registry,
				logger,
				scheduler.WithSpecs(command.String("minute-spec"), command.String("daily-spec")),
				scheduler.WithStaleAfter(command.Duration("stale-after")),
				scheduler.WithConcurrency(command.Int("scan-concurrency")),
				scheduler.WithClaims(engine.Claims),
			)

			cmd.ServeMetrics(ctx, command.Int("metrics-port"), engine.Metrics, logger)

			err = s.Start(ctx)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Scheduler started successfully")

			<-ctx.Done()
			logger.InfoContext(ctx, "Shutting down scheduler...")

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			s.Stop(stopCtx)

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("workflowd-scheduler").Error("Scheduler exited", "error", err)
		os.Exit(1)
	}
}
