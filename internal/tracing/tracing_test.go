package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_Disabled(t *testing.T) {
	for _, exp := range []string{"", "none"} {
		p, err := NewProvider(context.Background(), Config{Exporter: exp})
		require.NoError(t, err)
		require.False(t, p.Enabled())
		_, span := p.TracerProvider().Tracer("t").Start(context.Background(), "noop")
		require.False(t, span.IsRecording())
		span.End()
		require.NoError(t, p.Shutdown(context.Background()))
	}
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Exporter: "zipkin"})
	require.ErrorContains(t, err, "zipkin")
}

func TestNewProvider_Stdout(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Exporter: "stdout", ServiceName: "registry-test"})
	require.NoError(t, err)
	require.True(t, p.Enabled())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSDKProvider_ExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	p := newSDKProvider(Config{}, sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.TracerProvider().Tracer("t").Start(context.Background(), "registry.create")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "registry.create", spans[0].Name)
	svc, ok := spans[0].Resource.Set().Value("service.name")
	require.True(t, ok)
	require.Equal(t, DefaultServiceName, svc.AsString())
}
