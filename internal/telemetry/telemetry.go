// Package telemetry wires OpenTelemetry tracing for the pipeline and HTTP surface.
package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"vodpipe/internal/config"
)

// TracerName identifies spans emitted by vodpipe packages.
const TracerName = "vodpipe"

// Shutdown flushes and stops the provider.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Init configures the global trace provider from cfg.
// An empty endpoint disables tracing and returns a noop shutdown.
func Init(ctx context.Context, cfg config.Telemetry, logger *slog.Logger) (Shutdown, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return noop, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(hostPort(endpoint)),
		otlptracehttp.WithTimeout(3 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	}
	if !strings.HasPrefix(endpoint, "https://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(initCtx, opts...)
	if err != nil {
		// Non-fatal: the daemon starts without tracing.
		if logger != nil {
			logger.Warn("trace exporter unavailable; tracing disabled",
				slog.String("endpoint", endpoint),
				slog.String("error", err.Error()),
			)
		}
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName(cfg.ServiceName))),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRate(cfg.SampleRate)))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if logger != nil {
		logger.Info("tracing enabled",
			slog.String("endpoint", endpoint),
			slog.Float64("sample_rate", clampRate(cfg.SampleRate)),
		)
	}
	return tp.Shutdown, nil
}

// Tracer returns the package tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func hostPort(endpoint string) string {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	return strings.TrimRight(endpoint, "/")
}

func serviceName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "vodpipe"
	}
	return name
}

func clampRate(rate float64) float64 {
	if rate < 0 || rate > 1 {
		return 0.1
	}
	return rate
}
