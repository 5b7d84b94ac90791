package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

const stepDurationMetric = "tenantdb.provision.step.duration"

// TracingExecutor wraps a domain.Executor with a span per provisioning
// step and records step durations in a histogram.
type TracingExecutor struct {
	next     domain.Executor
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// Compile-time check: TracingExecutor implements domain.Executor.
var _ domain.Executor = (*TracingExecutor)(nil)

// NewTracingExecutor creates a tracing decorator around the given executor.
// Instruments come from the global MeterProvider.
func NewTracingExecutor(next domain.Executor) (*TracingExecutor, error) {
	duration, err := otel.Meter(tracerName).Float64Histogram(stepDurationMetric,
		metric.WithDescription("Duration of tenant provisioning steps."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &TracingExecutor{
		next:     next,
		tracer:   otel.Tracer(tracerName),
		duration: duration,
	}, nil
}

func (e *TracingExecutor) CreateDatabase(ctx context.Context, databaseName string, tmpl domain.ConnectionTemplate) error {
	return e.observe(ctx, domain.StageDatabase, databaseName, func(ctx context.Context) error {
		return e.next.CreateDatabase(ctx, databaseName, tmpl)
	})
}

func (e *TracingExecutor) Migrate(ctx context.Context, databaseName string, tmpl domain.ConnectionTemplate) error {
	return e.observe(ctx, domain.StageMigration, databaseName, func(ctx context.Context) error {
		return e.next.Migrate(ctx, databaseName, tmpl)
	})
}

func (e *TracingExecutor) LoadFixtures(ctx context.Context, databaseName string, tmpl domain.ConnectionTemplate) error {
	return e.observe(ctx, domain.StageFixtures, databaseName, func(ctx context.Context) error {
		return e.next.LoadFixtures(ctx, databaseName, tmpl)
	})
}

func (e *TracingExecutor) observe(ctx context.Context, stage domain.Stage, databaseName string, fn func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "Executor."+string(stage),
		trace.WithAttributes(
			attribute.String("provision.stage", string(stage)),
			attribute.String("tenant.database", databaseName),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	outcome := "success"
	if err != nil {
		outcome = "error"
		recordError(span, err)
	}
	// The measurement outlives a cancelled step.
	e.duration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("outcome", outcome),
		),
	)
	return err
}
