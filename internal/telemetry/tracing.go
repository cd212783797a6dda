// Package telemetry wraps the OpenTelemetry API. InitTracing installs the
// process-wide tracer provider; until it runs, spans are no-ops.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kbassist/backend/pkg/logger"
)

const (
	tracerName     = "github.com/kbassist/backend"
	serviceVersion = "1.0.0"
)

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Environment string
	// Endpoint is an OTLP/HTTP collector, host:port.
	Endpoint   string
	Insecure   bool
	SampleRate float64
}

// InitTracing exports spans over OTLP/HTTP in batches. The returned function
// flushes and shuts the provider down; it is a no-op when tracing is disabled.
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := NewTracerProvider(cfg, sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)

	logger.Info("Tracing enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return tp.Shutdown, nil
}

// NewTracerProvider builds a provider carrying the service resource and a
// parent-based ratio sampler. opts supply the span processors.
func NewTracerProvider(cfg TracingConfig, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	name := cfg.ServiceName
	if name == "" {
		name = "kbassist"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(name),
		semconv.ServiceVersionKey.String(serviceVersion),
		attribute.String("environment", cfg.Environment),
		attribute.String("host.name", hostname()),
	)

	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}, opts...)

	return sdktrace.NewTracerProvider(opts...)
}

func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
