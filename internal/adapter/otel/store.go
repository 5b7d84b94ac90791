package otel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

const tracerName = "github.com/neomorfeo/tenantdb/internal/adapter/otel"

// TracingTenantStore wraps a domain.TenantStore with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingTenantStore struct {
	next   domain.TenantStore
	tracer trace.Tracer
}

// Compile-time check: TracingTenantStore implements domain.TenantStore.
var _ domain.TenantStore = (*TracingTenantStore)(nil)

// NewTracingTenantStore creates a tracing decorator around the given store.
func NewTracingTenantStore(next domain.TenantStore) *TracingTenantStore {
	return &TracingTenantStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingTenantStore) Create(ctx context.Context, tenant domain.Tenant) (domain.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "TenantStore.Create",
		trace.WithAttributes(attribute.String("tenant.name", tenant.Name)),
	)
	defer span.End()

	created, err := s.next.Create(ctx, tenant)
	if err != nil {
		recordError(span, err)
		return created, err
	}
	span.SetAttributes(tenantIDAttr(created.ID))
	return created, nil
}

func (s *TracingTenantStore) GetByID(ctx context.Context, id domain.TenantID) (domain.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "TenantStore.GetByID",
		trace.WithAttributes(tenantIDAttr(id)),
	)
	defer span.End()

	tenant, err := s.next.GetByID(ctx, id)
	if err != nil {
		recordError(span, err)
	}
	return tenant, err
}

func (s *TracingTenantStore) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	ctx, span := s.tracer.Start(ctx, "TenantStore.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.DatabaseStatus != nil {
		span.SetAttributes(attribute.String("filter.database_status", string(*filter.DatabaseStatus)))
	}

	tenants, err := s.next.List(ctx, filter)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(tenants)))
	}
	return tenants, err
}

func (s *TracingTenantStore) UpdateContact(ctx context.Context, tenant domain.Tenant) error {
	ctx, span := s.tracer.Start(ctx, "TenantStore.UpdateContact",
		trace.WithAttributes(tenantIDAttr(tenant.ID), attribute.String("tenant.name", tenant.Name)),
	)
	defer span.End()

	err := s.next.UpdateContact(ctx, tenant)
	if err != nil {
		recordError(span, err)
	}
	return err
}

// UpdateLifecycle marks lost compare-and-set races with update.conflict so
// they can be told apart from storage failures.
func (s *TracingTenantStore) UpdateLifecycle(ctx context.Context, expected domain.LifecycleRecord, tenant domain.Tenant) error {
	ctx, span := s.tracer.Start(ctx, "TenantStore.UpdateLifecycle",
		trace.WithAttributes(
			tenantIDAttr(tenant.ID),
			attribute.String("tenant.database", tenant.DatabaseName()),
			attribute.String("tenant.database_status", string(tenant.DatabaseStatus())),
			attribute.String("tenant.migration_status", string(tenant.MigrationStatus())),
			attribute.String("tenant.fixtures_status", string(tenant.FixturesStatus())),
		),
	)
	defer span.End()

	err := s.next.UpdateLifecycle(ctx, expected, tenant)
	var conflict *domain.ConflictError
	span.SetAttributes(attribute.Bool("update.conflict", errors.As(err, &conflict)))
	if err != nil {
		recordError(span, err)
	}
	return err
}

// TracingStepLeaser wraps a domain.StepLeaser with OpenTelemetry tracing.
type TracingStepLeaser struct {
	next   domain.StepLeaser
	tracer trace.Tracer
}

var _ domain.StepLeaser = (*TracingStepLeaser)(nil)

func NewTracingStepLeaser(next domain.StepLeaser) *TracingStepLeaser {
	return &TracingStepLeaser{next: next, tracer: otel.Tracer(tracerName)}
}

func (l *TracingStepLeaser) AcquireLease(ctx context.Context, id domain.TenantID, owner string, ttl time.Duration) (bool, error) {
	ctx, span := l.tracer.Start(ctx, "StepLeaser.AcquireLease",
		trace.WithAttributes(
			tenantIDAttr(id),
			attribute.String("lease.owner", owner),
			attribute.Int64("lease.ttl_ms", ttl.Milliseconds()),
		),
	)
	defer span.End()

	ok, err := l.next.AcquireLease(ctx, id, owner, ttl)
	if err != nil {
		recordError(span, err)
		return false, err
	}
	span.SetAttributes(attribute.Bool("lease.acquired", ok))
	return ok, nil
}

func (l *TracingStepLeaser) ReleaseLease(ctx context.Context, id domain.TenantID, owner string) error {
	ctx, span := l.tracer.Start(ctx, "StepLeaser.ReleaseLease",
		trace.WithAttributes(tenantIDAttr(id), attribute.String("lease.owner", owner)),
	)
	defer span.End()

	err := l.next.ReleaseLease(ctx, id, owner)
	if err != nil {
		recordError(span, err)
	}
	return err
}

func tenantIDAttr(id domain.TenantID) attribute.KeyValue {
	return attribute.Int64("tenant.id", int64(id))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
