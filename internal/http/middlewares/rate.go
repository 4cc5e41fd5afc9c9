package middlewares

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/authcore/internal/auth"
	httperrors "github.com/dropDatabas3/authcore/internal/http/errors"
	"github.com/dropDatabas3/authcore/internal/http/helpers"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/rate"
)

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IPOnlyRateKey: solo IP.
func IPOnlyRateKey(r *http.Request) string { return helpers.ClientIP(r) }

// IPRouteRateKey separa el límite por endpoint (login vs signup) sin leer
// el body.
func IPRouteRateKey(r *http.Request) string {
	return helpers.ClientIP(r) + "|" + r.Method + "|" + r.URL.Path
}

// RateLimitConfig configura WithRateLimit.
type RateLimitConfig struct {
	Limiter rate.Limiter
	KeyFunc RateKeyFunc
	// Scope etiqueta el rechazo en métricas y logs ("login", "otp"...).
	Scope     string
	OnLimited func(scope string)
}

// WithRateLimit rechaza con 429 cuando se agota la ventana. Si el limiter
// falla (redis caído) el request pasa y se loguea un warning.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPRouteRateKey
	}
	if cfg.Scope == "" {
		cfg.Scope = "ip"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := cfg.Limiter.Allow(r.Context(), cfg.Scope+":"+cfg.KeyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable, allowing request",
					logger.Component("ratelimit"), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds()+0.5)))
				}
				if cfg.OnLimited != nil {
					cfg.OnLimited(cfg.Scope)
				}
				httperrors.WriteError(w, auth.ErrRateLimited)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
