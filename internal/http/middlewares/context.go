package middlewares

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/authcore/internal/auth"
)

// Middleware decora un http.Handler; el router los monta con chi (Use/With).
type Middleware func(http.Handler) http.Handler

// =================================================================================
// CONTEXT KEYS
// =================================================================================

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxPrincipalKey ctxKey = "principal"
	ctxTokenKey     ctxKey = "token"
)

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, rid)
}

// WithPrincipal inyecta el caller autenticado y su token.
func WithPrincipal(ctx context.Context, p *auth.Principal, tok string) context.Context {
	ctx = context.WithValue(ctx, ctxPrincipalKey, p)
	return context.WithValue(ctx, ctxTokenKey, tok)
}

// GetRequestID devuelve el request ID o "".
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return v
	}
	return ""
}

// GetPrincipal devuelve el caller autenticado o nil si la ruta no pasó por
// RequireAuth.
func GetPrincipal(ctx context.Context) *auth.Principal {
	if p, ok := ctx.Value(ctxPrincipalKey).(*auth.Principal); ok {
		return p
	}
	return nil
}

// GetToken devuelve el bearer token validado.
func GetToken(ctx context.Context) string {
	if v, ok := ctx.Value(ctxTokenKey).(string); ok {
		return v
	}
	return ""
}
