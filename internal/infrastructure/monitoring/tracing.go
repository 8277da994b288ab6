package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/pkg/logger"
)

// instrumentationName names the tracer handed to the token endpoint, authorize and key
// rotation spans.
const instrumentationName = "github.com/turtacn/authcore"

// Tracing owns the process tracer provider. With tracing disabled it hands out the
// global no-op tracer and Shutdown does nothing.
type Tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	logger   logger.Logger
}

// SetupTracing installs a Jaeger-exporting tracer provider and the W3C propagators as
// process globals when cfg.Tracing.Enabled is set.
func SetupTracing(ctx context.Context, cfg *config.Config, log logger.Logger) (*Tracing, error) {
	log = log.WithComponent("tracing")
	if !cfg.Tracing.Enabled {
		log.Info(ctx, "Tracing is disabled")
		return &Tracing{tracer: otel.Tracer(instrumentationName), logger: log}, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Tracing.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}
	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to describe tracing resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.Tracing.SamplingRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	log.Info(ctx, "Tracing enabled",
		logger.String("endpoint", cfg.Tracing.JaegerEndpoint),
		logger.Float64("sampling_rate", cfg.Tracing.SamplingRate),
	)
	return &Tracing{provider: provider, tracer: provider.Tracer(instrumentationName), logger: log}, nil
}

func serviceResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	name := cfg.Tracing.ServiceName
	if name == "" {
		name = "authcore"
	}
	return resource.New(ctx,
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.DeploymentEnvironmentKey.String(cfg.Server.Environment),
		),
	)
}

// sampler honors the caller's sampling decision and samples new root traces at rate.
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Tracer is the tracer for components that open their own spans.
func (t *Tracing) Tracer() trace.Tracer {
	return t.tracer
}

// Shutdown flushes buffered spans to the collector.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		t.logger.Error(ctx, "Failed to flush spans", err)
		return err
	}
	return nil
}
