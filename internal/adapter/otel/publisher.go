package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

// TracingPublisher wraps a domain.EventPublisher with OpenTelemetry tracing.
type TracingPublisher struct {
	next   domain.EventPublisher
	tracer trace.Tracer
}

// Compile-time check: TracingPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.EventPublisher) *TracingPublisher {
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

// Publish traces one event. Stage events carry provision.stage and
// event.outcome; tenant-level events such as tenant_onboarded carry neither.
func (p *TracingPublisher) Publish(ctx context.Context, event domain.Event, tenant domain.Tenant) error {
	attrs := []attribute.KeyValue{
		attribute.String("event.type", string(event)),
		tenantIDAttr(tenant.ID),
		attribute.String("tenant.database", tenant.DatabaseName()),
	}
	if stage, failed, ok := domain.StageOf(event); ok {
		outcome := "completed"
		if failed {
			outcome = "failed"
		}
		attrs = append(attrs,
			attribute.String("provision.stage", string(stage)),
			attribute.String("event.outcome", outcome),
			attribute.String("tenant.stage_status", tenant.StageStatus(stage)),
		)
	}

	ctx, span := p.tracer.Start(ctx, "EventPublisher.Publish", trace.WithAttributes(attrs...))
	defer span.End()

	if err := p.next.Publish(ctx, event, tenant); err != nil {
		recordError(span, err)
		return err
	}
	return nil
}
