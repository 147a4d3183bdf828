// Package tracing wires OpenTelemetry around Core.Execute: one span per
// execute() call, exported to Jaeger when configured.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/apexgate/upstreamcore/internal/config"
)

// tracerName identifies this module's spans in whatever backend collects them.
const tracerName = "upstreamcore"

// TracerProvider manages the OpenTelemetry tracer provider for the balancer core.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	config   *config.TracingConfig
}

// NewTracerProvider creates and configures a new tracer provider. A nil or
// disabled config returns a provider whose IsEnabled is false and whose
// StartExecuteSpan is a no-op.
func NewTracerProvider(cfg *config.TracingConfig) (*TracerProvider, error) {
	if cfg == nil || !cfg.Enabled {
		return &TracerProvider{config: cfg}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.Jaeger.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if cfg.Jaeger.Endpoint != "" {
		exporter, err = createExporter(cfg)
		if err != nil {
			return nil, fmt.Errorf("tracing: build exporter: %w", err)
		}
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		sampler := sdktrace.AlwaysSample()
		if cfg.Jaeger.SampleRate > 0 && cfg.Jaeger.SampleRate < 1.0 {
			sampler = sdktrace.TraceIDRatioBased(cfg.Jaeger.SampleRate)
		}
		opts = append(opts,
			sdktrace.WithBatcher(exporter,
				sdktrace.WithBatchTimeout(5*time.Second),
				sdktrace.WithMaxExportBatchSize(512),
			),
			sdktrace.WithSampler(sampler),
		)
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, config: cfg}, nil
}

func createExporter(cfg *config.TracingConfig) (sdktrace.SpanExporter, error) {
	return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Jaeger.Endpoint)))
}

// Shutdown gracefully shuts down the tracer provider. Safe to call on a
// disabled provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// ForceFlush forces all buffered spans to be exported.
func (tp *TracerProvider) ForceFlush(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.ForceFlush(ctx)
}

// IsEnabled reports whether tracing is configured and active.
func (tp *TracerProvider) IsEnabled() bool {
	return tp.config != nil && tp.config.Enabled
}

// StartExecuteSpan opens a span around one Core.Execute call, tagging it
// with the upstream name being resolved. The returned func ends the span; it
// is always safe to call even when tracing is disabled.
func (tp *TracerProvider) StartExecuteSpan(ctx context.Context, upstreamName string) (context.Context, func()) {
	if !tp.IsEnabled() {
		return ctx, func() {}
	}
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "execute",
		oteltrace.WithAttributes(semconv.ServiceName(upstreamName)))
	return ctx, func() { span.End() }
}

// TraceID returns the active span's trace id from ctx, or "" if none.
func TraceID(ctx context.Context) string {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// InjectHeaders injects the current trace context into an outbound header map.
func InjectHeaders(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// ExtractHeaders returns a context carrying the trace context found in an
// inbound header map, if any.
func ExtractHeaders(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
