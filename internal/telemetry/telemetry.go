// Package telemetry installs an OTLP trace exporter when an endpoint is
// configured. Without one, the global no-op tracer stays in place.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName is reported unless OTEL_SERVICE_NAME overrides it.
const ServiceName = "voterchart"

// ShutdownFunc flushes and stops the exporter.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Endpoint returns the configured endpoint, falling back to the standard
// OTEL_EXPORTER_OTLP_ENDPOINT variable.
func Endpoint(configured string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// TracesPath is appended to endpoint URLs that name only the collector base.
const TracesPath = "/v1/traces"

// exporterOptions accepts either a bare host:port, sent over plain HTTP, or a
// base URL as in OTEL_EXPORTER_OTLP_ENDPOINT, whose scheme picks the transport.
func exporterOptions(endpoint string) ([]otlptracehttp.Option, error) {
	if !strings.Contains(endpoint, "://") {
		return []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		}, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
	if !strings.HasSuffix(u.Path, TracesPath) {
		u.Path = strings.TrimSuffix(u.Path, "/") + TracesPath
	}
	return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(u.String())}, nil
}

// Setup installs a batching OTLP/HTTP tracer provider for endpoint. An empty
// endpoint disables tracing.
func Setup(ctx context.Context, endpoint string) (ShutdownFunc, error) {
	if endpoint == "" {
		return noop, nil
	}

	opts, err := exporterOptions(endpoint)
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = ServiceName
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
