package cmd

import (
	"github.com/salonkit/workflowd/pkg/actions"
	cli "github.com/urfave/cli/v3"
)

// CommonFlags are accepted by every workflowd binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file:// or postgres://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, gochannel)",
			Value:   "kafka",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

// ExecutionFlags are accepted by the binaries that run workflows.
func ExecutionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "directory-url",
			Usage:    "Connection URL of the salon database holding customers and visits",
			Required: true,
			Sources:  cli.EnvVars("DIRECTORY_DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for dispatch deduplication and scan leases (optional)",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "dispatch-url",
			Usage:   "Message dispatch service endpoint; messages are only logged when empty",
			Sources: cli.EnvVars("MESSAGE_DISPATCH_URL"),
		},
		&cli.IntFlag{
			Name:    "dispatch-concurrency",
			Usage:   "Concurrent dispatches per execution",
			Value:   actions.DefaultConcurrency,
			Sources: cli.EnvVars("DISPATCH_CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:    "dispatch-timeout",
			Usage:   "Timeout of a single dispatch",
			Value:   actions.DefaultDispatchTimeout,
			Sources: cli.EnvVars("DISPATCH_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Port serving /metrics (0 disables it)",
			Value:   9464,
			Sources: cli.EnvVars("METRICS_PORT"),
		},
	}
}

// Flags concatenates flag groups.
func Flags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag

	for _, group := range groups {
		flags = append(flags, group...)
	}

	return flags
}

