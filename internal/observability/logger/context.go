package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ToContext guarda l en ctx; los middlewares lo usan para el logger del
// request (request_id, tenant_id, user_id).
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From devuelve el logger de ctx, o el global.
func From(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if l, _ := ctx.Value(ctxKey{}).(*zap.Logger); l != nil {
		return l
	}
	return L()
}

// With agrega campos al logger de ctx y devuelve el contexto derivado.
func With(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return ToContext(ctx, From(ctx).With(fields...))
}
