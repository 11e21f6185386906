package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/salonkit/workflowd/pkg/cmd"
	"github.com/salonkit/workflowd/pkg/dispatch"
	"github.com/salonkit/workflowd/pkg/log"
	"github.com/salonkit/workflowd/pkg/metrics"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "workflowd-api",
		Usage:                 "Manage marketing workflows and ingest customer lifecycle events",
		EnableShellCompletion: true,
		Flags: cmd.Flags(cmd.CommonFlags(), []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("workflowd-api")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing workflowd API")

			_, shutdownTracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "workflowd-api")
			if err != nil {
				return err
			}

			defer func() {
				if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewBroadcastEventBus(command.String("event-bus"), "workflowd-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			// the API validates send-message configs but never dispatches
			registry := cmd.NewRegistry(logger, dispatch.NewLogDispatcher(logger))

			api := NewAPI(
				logger,
				persistence,
				registry,
				eventBus,
				metrics.New(),
			)

			return api.Start(ctx, command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("workflowd-api").Error("API exited", "error", err)
		os.Exit(1)
	}
}
