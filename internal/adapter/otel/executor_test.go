package otel_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	adapter "github.com/neomorfeo/tenantdb/internal/adapter/otel"
	"github.com/neomorfeo/tenantdb/internal/domain"
)

type stubExecutor struct {
	err error
}

func (s stubExecutor) CreateDatabase(context.Context, string, domain.ConnectionTemplate) error {
	return s.err
}

func (s stubExecutor) Migrate(context.Context, string, domain.ConnectionTemplate) error {
	return s.err
}

func (s stubExecutor) LoadFixtures(context.Context, string, domain.ConnectionTemplate) error {
	return s.err
}

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader
}

func stepHistogram(t *testing.T, reader *sdkmetric.ManualReader) metricdata.Histogram[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "tenantdb.provision.step.duration" {
				continue
			}
			h, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric data is %T, want histogram", m.Data)
			}
			return h
		}
	}
	t.Fatal("step duration histogram not recorded")
	return metricdata.Histogram[float64]{}
}

func TestTracingExecutor_RecordsSpanAndDuration(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)

	exec, err := adapter.NewTracingExecutor(stubExecutor{})
	if err != nil {
		t.Fatalf("NewTracingExecutor: %v", err)
	}

	if err := exec.Migrate(context.Background(), "acme_tenant_7", domain.ConnectionTemplate{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "Executor.migration" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "Executor.migration")
	}
	assertAttribute(t, spans[0], "provision.stage", "migration")
	assertAttribute(t, spans[0], "tenant.database", "acme_tenant_7")

	h := stepHistogram(t, reader)
	if len(h.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(h.DataPoints))
	}
	dp := h.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("count = %d, want 1", dp.Count)
	}
	if v, _ := dp.Attributes.Value(attribute.Key("outcome")); v.AsString() != "success" {
		t.Errorf("outcome = %q, want %q", v.AsString(), "success")
	}
	if v, _ := dp.Attributes.Value(attribute.Key("stage")); v.AsString() != "migration" {
		t.Errorf("stage = %q, want %q", v.AsString(), "migration")
	}
}

func TestTracingExecutor_RecordsFailure(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)

	boom := errors.New("server unreachable")
	exec, err := adapter.NewTracingExecutor(stubExecutor{err: boom})
	if err != nil {
		t.Fatalf("NewTracingExecutor: %v", err)
	}

	if err := exec.CreateDatabase(context.Background(), "acme_tenant_7", domain.ConnectionTemplate{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}

	h := stepHistogram(t, reader)
	if len(h.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(h.DataPoints))
	}
	if v, _ := h.DataPoints[0].Attributes.Value(attribute.Key("outcome")); v.AsString() != "error" {
		t.Errorf("outcome = %q, want %q", v.AsString(), "error")
	}
}
