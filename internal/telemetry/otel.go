// Package telemetry configures OpenTelemetry tracing for the server and worker.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// ServiceName is the resource name reported by every process of the app.
const ServiceName = "situation-monitor"

// Options configures the tracer provider.
type Options struct {
	// Component distinguishes server and worker spans, e.g. "server".
	Component string
	Version   string
	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string
}

// InitTracer installs a global tracer provider exporting to the OTLP endpoint
// and the W3C trace context propagator.
func InitTracer(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithInsecure(), // collector runs as a sidecar
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(opts.Version),
			semconv.ServiceInstanceID(opts.Component),
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
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// Shutdown flushes and stops the tracer provider. A nil provider is a no-op.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// Start installs tracing when enabled. It returns whether spans are being
// exported and a stop function that flushes them; stop is always safe to call.
// An unreachable exporter is not fatal: the process keeps running untraced.
func Start(ctx context.Context, enabled bool, opts Options, log *zap.Logger) (tracing bool, stop func()) {
	if !enabled {
		return false, func() {}
	}
	tp, err := InitTracer(ctx, opts)
	if err != nil {
		log.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		return false, func() {}
	}
	log.Info("otel_tracer_initialized",
		zap.String("endpoint", opts.Endpoint),
		zap.String("component", opts.Component),
	)
	return true, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := Shutdown(shutdownCtx, tp); err != nil {
			log.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}
}
