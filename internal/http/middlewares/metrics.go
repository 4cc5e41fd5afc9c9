package middlewares

import (
	"net/http"
	"time"
)

// HTTPObserver recibe una observación por request (metrics.Metrics).
type HTTPObserver interface {
	InflightInc()
	InflightDec()
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// WithMetrics mide latencia y status por patrón de ruta, nunca por path
// crudo (los ids explotarían la cardinalidad).
func WithMetrics(obs HTTPObserver) Middleware {
	if obs == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			obs.InflightInc()
			defer obs.InflightDec()

			rec := record(w)
			next.ServeHTTP(rec, r)

			obs.ObserveHTTP(r.Method, routePattern(r), rec.status, time.Since(start))
		})
	}
}
