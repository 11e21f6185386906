package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/salonkit/workflowd/pkg/claims"
	"github.com/salonkit/workflowd/pkg/directory"
	"github.com/salonkit/workflowd/pkg/directory/gormdir"
	"github.com/salonkit/workflowd/pkg/dispatch"
	"github.com/salonkit/workflowd/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewDirectory connects to the salon database holding customers, visits and message logs.
func NewDirectory(dsn string) (directory.Directory, error) {
	db, err := gormdir.Open(dsn)
	if err != nil {
		return nil, err
	}

	return gormdir.New(db), nil
}

// NewDispatcher returns the HTTP client of the dispatch service, or a dispatcher that only
// logs when no URL is configured.
func NewDispatcher(url string, timeout time.Duration, logger *slog.Logger) dispatch.Dispatcher {
	if url == "" {
		logger.Warn("No dispatch URL configured, messages will only be logged")

		return dispatch.NewLogDispatcher(logger)
	}

	return dispatch.NewHTTPDispatcher(url, timeout, logger)
}

// NewClaims returns the Redis claims store, or an in-process store when redisURL is empty.
// The close function releases the Redis client.
func NewClaims(ctx context.Context, redisURL string) (claims.Store, func() error, error) {
	if redisURL == "" {
		return claims.NewMemoryStore(), func() error { return nil }, nil
	}

	client, err := claims.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}

	return claims.NewRedisStore(client), client.Close, nil
}

// NewTracer returns an OTLP tracer when enabled and a no-op tracer otherwise.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, func(context.Context) error, error) {
	if !enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	return tracer, shutdown, nil
}
