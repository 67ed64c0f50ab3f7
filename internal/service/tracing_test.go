package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/and161185/tld-registry/internal/errs"
)

func attrs(s sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := map[attribute.Key]string{}
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestRun_RecordsFlowSpans(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	sr := tracetest.NewSpanRecorder()
	e.reg.WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))

	created := e.create(t, r1, "example.tld", 1)
	_, err := e.reg.CreateDomain(context.Background(), e.tld, CreateCommand{Caller: r1, Name: "example.tld", Years: 1})
	require.ErrorIs(t, err, errs.ErrDomainExists)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	require.Equal(t, "registry.create", ok.Name())
	require.Equal(t, codes.Unset, ok.Status().Code)
	a := attrs(ok)
	require.Equal(t, "R1", a["registrar"])
	require.Equal(t, "example.tld", a["domain"])
	require.NotEmpty(t, a["history_id"])
	require.Equal(t, created.Domain.Name, a["domain"])

	failed := spans[1]
	require.Equal(t, "registry.create", failed.Name())
	require.Equal(t, codes.Error, failed.Status().Code)
	require.NotEmpty(t, failed.Events(), "error is recorded on the span")
}
