package middlewares

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/authcore/internal/auth"
	httperrors "github.com/dropDatabas3/authcore/internal/http/errors"
	"github.com/dropDatabas3/authcore/internal/http/helpers"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/token"
)

// Authenticator resuelve un bearer token (auth.Engine).
type Authenticator interface {
	Authenticate(ctx context.Context, tok string) (*auth.Principal, error)
}

// =================================================================================
// AUTHENTICATION MIDDLEWARES
// =================================================================================

// RequireAuth valida Authorization: Bearer <tenantId>.<random> y guarda el
// Principal en el contexto. El tenant se toma del prefijo del token antes
// de tocar el store; un prefijo inválido se rechaza sin lookup.
func RequireAuth(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := helpers.BearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="missing bearer token"`)
				httperrors.WriteError(w, auth.ErrUnauthorized)
				return
			}
			tenantID, ok := token.TenantOf(tok)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				httperrors.WriteError(w, auth.ErrUnauthorized)
				return
			}

			ctx := logger.With(r.Context(), logger.TenantID(tenantID))

			p, err := a.Authenticate(ctx, tok)
			if err != nil {
				if auth.CodeOf(err) == auth.CodeInternal {
					logger.From(ctx).Error("authenticate failed", logger.TokenFP(tok), logger.Err(err))
				} else {
					w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				}
				httperrors.WriteError(w, err)
				return
			}

			ctx = logger.With(ctx, logger.UserID(p.User.ID))
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p, tok)))
		})
	}
}
