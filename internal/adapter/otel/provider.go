// Package otel wires OpenTelemetry into tenantdb: provider setup, an
// instrumented store database, and tracing decorators for the ports.
package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds OpenTelemetry provider configuration. Sampler names follow
// the OTEL_TRACES_SAMPLER values other OpenTelemetry SDKs accept.
type Config struct {
	ServiceName    string        `env:"OTEL_SERVICE_NAME" envDefault:"tenantdb"`
	ServiceVersion string        `env:"OTEL_SERVICE_VERSION" envDefault:"0.1.0"`
	Environment    string        `env:"OTEL_ENVIRONMENT" envDefault:"development"`
	Exporter       string        `env:"OTEL_EXPORTER" envDefault:"stdout"` // stdout | otlp | none
	Sampler        string        `env:"OTEL_TRACES_SAMPLER" envDefault:"parentbased_always_on"`
	SamplerArg     float64       `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1"`
	MetricInterval time.Duration `env:"OTEL_METRIC_EXPORT_INTERVAL"`
	// Insecure sends OTLP over plain HTTP. Set for the development environment.
	Insecure bool `env:"-"`
}

// ConfigFromEnv parses Config from the environment.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parsing otel config: %w", err)
	}
	cfg.Insecure = cfg.Environment == "development"
	return cfg, nil
}

// Providers holds the installed SDK providers.
type Providers struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

// Shutdown flushes pending telemetry and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.TracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	if err := p.MeterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// Setup builds the tracer and meter providers and registers them, plus a
// W3C trace-context propagator, as the globals.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	sampler, err := newSampler(cfg.Sampler, cfg.SamplerArg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	spans, metrics, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tpOpts := []trace.TracerProviderOption{trace.WithResource(res), trace.WithSampler(sampler)}
	if spans != nil {
		tpOpts = append(tpOpts, trace.WithBatcher(spans))
	}

	mpOpts := []metric.Option{metric.WithResource(res)}
	if metrics != nil {
		var readerOpts []metric.PeriodicReaderOption
		if cfg.MetricInterval > 0 {
			readerOpts = append(readerOpts, metric.WithInterval(cfg.MetricInterval))
		}
		mpOpts = append(mpOpts, metric.WithReader(metric.NewPeriodicReader(metrics, readerOpts...)))
	}

	p := &Providers{
		TracerProvider: trace.NewTracerProvider(tpOpts...),
		MeterProvider:  metric.NewMeterProvider(mpOpts...),
	}

	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

// newExporters returns nil exporters for "none".
func newExporters(ctx context.Context, cfg Config) (trace.SpanExporter, metric.Exporter, error) {
	switch cfg.Exporter {
	case "none":
		return nil, nil, nil

	case "stdout":
		spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("creating stdout span exporter: %w", err)
		}
		metrics, err := stdoutmetric.New()
		if err != nil {
			return nil, nil, fmt.Errorf("creating stdout metric exporter: %w", err)
		}
		return spans, metrics, nil

	case "otlp":
		var traceOpts []otlptracehttp.Option
		var metricOpts []otlpmetrichttp.Option
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		spans, err := otlptracehttp.New(ctx, traceOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating otlp span exporter: %w", err)
		}
		metrics, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating otlp metric exporter: %w", err)
		}
		return spans, metrics, nil

	default:
		return nil, nil, fmt.Errorf("unsupported exporter %q (use stdout, otlp or none)", cfg.Exporter)
	}
}

func newSampler(name string, arg float64) (trace.Sampler, error) {
	if (name == "traceidratio" || name == "parentbased_traceidratio") && (arg < 0 || arg > 1) {
		return nil, fmt.Errorf("sampler ratio %v is outside [0, 1]", arg)
	}
	switch name {
	case "", "parentbased_always_on":
		return trace.ParentBased(trace.AlwaysSample()), nil
	case "parentbased_always_off":
		return trace.ParentBased(trace.NeverSample()), nil
	case "parentbased_traceidratio":
		return trace.ParentBased(trace.TraceIDRatioBased(arg)), nil
	case "always_on":
		return trace.AlwaysSample(), nil
	case "always_off":
		return trace.NeverSample(), nil
	case "traceidratio":
		return trace.TraceIDRatioBased(arg), nil
	default:
		return nil, fmt.Errorf("unsupported sampler %q", name)
	}
}
