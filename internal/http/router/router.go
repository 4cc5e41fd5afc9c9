// Package router arma el árbol de rutas chi de la API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/http/controllers"
	httperrors "github.com/dropDatabas3/authcore/internal/http/errors"
	mw "github.com/dropDatabas3/authcore/internal/http/middlewares"
	"github.com/dropDatabas3/authcore/internal/metrics"
	"github.com/dropDatabas3/authcore/internal/rate"
)

// Deps contiene las dependencias del router. Solo Engine es obligatorio.
type Deps struct {
	Engine *auth.Engine
	Stores controllers.Pinger

	// Metrics habilita el middleware de métricas y GET /metrics.
	Metrics *metrics.Metrics

	// IPLimits son los límites por IP de los endpoints públicos (los límites
	// por identifier los aplica el Engine).
	IPLimits auth.Limits

	CORSOrigins []string
}

// New devuelve el handler HTTP completo.
func New(d Deps) http.Handler {
	c := controllers.New(d.Engine, d.Stores)

	var obs mw.HTTPObserver
	var onLimited func(string)
	if d.Metrics != nil {
		obs = d.Metrics
		onLimited = d.Metrics.RateLimited
	}
	limited := func(l rate.Limiter, scope string) mw.Middleware {
		return mw.WithRateLimit(mw.RateLimitConfig{
			Limiter:   l,
			KeyFunc:   mw.IPOnlyRateKey,
			Scope:     scope,
			OnLimited: onLimited,
		})
	}

	r := chi.NewRouter()
	r.Use(
		mw.WithRequestID(),
		mw.WithRecover(),
		mw.WithLogging(),
		mw.WithMetrics(obs),
		mw.WithSecurityHeaders(),
		mw.WithCORS(d.CORSOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// =========================================================================
	// Health / metrics (sin auth)
	// =========================================================================
	r.Get("/healthz", c.Health.Healthz)
	r.Get("/readyz", c.Health.Readyz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	// =========================================================================
	// Públicas: config y descubrimiento
	// =========================================================================
	r.Get("/config", c.Config.Get)
	r.Get("/providers", c.Auth.Providers)
	r.Get("/password-policy/examples", c.Config.Examples)

	// =========================================================================
	// Auth públicas: respuestas con tokens, nunca cacheables
	// =========================================================================
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())

		r.With(limited(d.IPLimits.Login, "login")).Post("/login", c.Auth.Login)
		r.With(limited(d.IPLimits.Signup, "signup")).Post("/signup", c.Auth.Signup)
		r.Post("/logout", c.Auth.Logout)

		r.With(limited(d.IPLimits.OTP, "otp")).Post("/otp/request", c.OTP.Request)
		r.With(limited(d.IPLimits.Login, "otp-verify")).Post("/otp/verify", c.OTP.Verify)

		r.Get("/oauth/{provider}/start", c.OAuth.Start)
		r.With(limited(d.IPLimits.Login, "oauth")).Get("/oauth/{provider}/callback", c.OAuth.Callback)
	})

	// =========================================================================
	// Autenticadas (Bearer <tenantId>.<random>)
	// =========================================================================
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore(), mw.RequireAuth(d.Engine))

		r.Get("/me", c.Auth.Me)
		r.Patch("/config", c.Config.Patch)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", c.Users.List)
			r.Post("/", c.Users.Create)
			r.Get("/{id}", c.Users.Get)
			r.Delete("/{id}", c.Users.Delete)
			r.Post("/{id}/revoke-sessions", c.Users.RevokeSessions)
		})
	})

	return r
}
