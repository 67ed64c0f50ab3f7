package grpcserver

import (
	"context"

	"github.com/and161185/tld-registry/internal/service"
)

type ctxKey string

const callerKey ctxKey = "registry.caller"

// WithCaller stores the authenticated registrar in context.
func WithCaller(ctx context.Context, c service.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromCtx fetches the authenticated registrar from context.
func CallerFromCtx(ctx context.Context) (service.Caller, bool) {
	c, ok := ctx.Value(callerKey).(service.Caller)
	return c, ok && c.RegistrarID != ""
}
