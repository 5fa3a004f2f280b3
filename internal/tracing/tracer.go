package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/platformbuilds/dashbridge"

// TracerProvider manages the lifecycle of the OpenTelemetry tracer
type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

// NewTracerProvider creates an OTLP/gRPC tracer provider and installs it
// as the global provider.
func NewTracerProvider(ctx context.Context, serviceName, serviceVersion, otlpEndpoint string) (*TracerProvider, error) {
	exporter, err := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(), // TODO: expose TLS settings under monitoring.otlp_tls
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.ServiceNamespaceKey.String("dashbridge"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)

	return &TracerProvider{tp: tp}, nil
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.tp.Shutdown(ctx)
}

// ConversionTracer opens spans around pipeline stages. It resolves the
// global provider on every call, so it is a no-op until tracing is enabled.
type ConversionTracer struct{}

func NewConversionTracer() *ConversionTracer { return &ConversionTracer{} }

func (ConversionTracer) tracer() trace.Tracer { return otel.Tracer(instrumentationName) }

// StartConversionSpan wraps one full conversion.
func (ct ConversionTracer) StartConversionSpan(ctx context.Context, mode, targetVersion string) (context.Context, trace.Span) {
	return ct.tracer().Start(ctx, "conversion",
		trace.WithAttributes(
			attribute.String("conversion.mode", mode),
			attribute.String("conversion.target_version", targetVersion),
			attribute.String("component", "converter"),
		),
	)
}

// StartStageSpan wraps one stage (validate, panels, variables, assemble, persist).
func (ct ConversionTracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return ct.tracer().Start(ctx, "conversion."+stage,
		trace.WithAttributes(attribute.String("conversion.stage", stage)),
	)
}

// RecordResult annotates span with the outcome of a conversion.
func RecordResult(span trace.Span, duration time.Duration, panels, warnings int, err error) {
	span.SetAttributes(
		attribute.Int64("conversion.duration_ms", duration.Milliseconds()),
		attribute.Int("conversion.panels", panels),
		attribute.Int("conversion.warnings", warnings),
	)
	if err != nil {
		RecordError(span, err)
		return
	}
	span.SetStatus(codes.Ok, "")
}

// RecordError marks span failed.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
