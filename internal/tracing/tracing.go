// Package tracing configures the OpenTelemetry tracer provider for the registry server.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName identifies the server in exported traces.
const DefaultServiceName = "tld-registry"

// Config selects the span exporter.
type Config struct {
	// Exporter is one of "none", "stdout" or "otlp". "none" disables tracing.
	Exporter string
	// OTLPEndpoint is the collector address for the otlp exporter. Default localhost:4317.
	OTLPEndpoint string
	// SampleRate is the fraction of root spans sampled. Zero or less means all.
	SampleRate  float64
	ServiceName string
}

// Provider owns the SDK tracer provider, or a no-op one when tracing is disabled.
type Provider struct {
	sdk *sdktrace.TracerProvider
	tp  trace.TracerProvider
}

// NewProvider builds the provider for cfg and installs it as the global one.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "", "none":
		return &Provider{tp: noop.NewTracerProvider()}, nil
	case "stdout":
		exporter, err = stdouttrace.New()
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}
	return newSDKProvider(cfg, sdktrace.WithBatcher(exporter)), nil
}

func newSDKProvider(cfg Config, export sdktrace.TracerProviderOption) *Provider {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1
	}
	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
		export,
	)
	otel.SetTracerProvider(sdk)
	return &Provider{sdk: sdk, tp: sdk}
}

// TracerProvider returns the provider spans should be started from.
func (p *Provider) TracerProvider() trace.TracerProvider { return p.tp }

// Enabled reports whether spans are recorded and exported.
func (p *Provider) Enabled() bool { return p.sdk != nil }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}
