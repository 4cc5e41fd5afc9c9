package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/rate"
)

var ok200 = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "from-client")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "from-client", seen)

	for _, bad := range []string{"has space", "line\nbreak", string(make([]byte, 65))} {
		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", bad)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEqual(t, bad, seen)
		assert.Len(t, seen, 36, "replaced by a uuid")
	}
}

func TestWithRecover(t *testing.T) {
	h := WithRecover()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal-error")
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (rate.Result, error) {
	return rate.Result{}, errors.New("redis down")
}

func TestWithRateLimit(t *testing.T) {
	var limited []string
	h := WithRateLimit(RateLimitConfig{
		Limiter:   rate.NewMemoryLimiter(rate.Rule{Max: 2, Window: time.Minute}),
		Scope:     "login",
		OnLimited: func(s string) { limited = append(limited, s) },
	})(ok200)

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)
	rec := do("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate-limited")
	assert.Equal(t, []string{"login"}, limited)

	assert.Equal(t, http.StatusOK, do("10.0.0.2").Code, "other IPs keep their own window")
}

func TestWithRateLimitFailsOpen(t *testing.T) {
	h := WithRateLimit(RateLimitConfig{Limiter: brokenLimiter{}})(ok200)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeAuth struct {
	calls int
	p     *auth.Principal
	err   error
}

func (f *fakeAuth) Authenticate(context.Context, string) (*auth.Principal, error) {
	f.calls++
	return f.p, f.err
}

func TestRequireAuth(t *testing.T) {
	p := &auth.Principal{User: &domain.User{ID: "u1", TenantID: "acme"}, Session: &domain.Session{TenantID: "acme"}}
	var got *auth.Principal
	var gotTok string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r.Context())
		gotTok = GetToken(r.Context())
	})

	t.Run("missing header", func(t *testing.T) {
		fa := &fakeAuth{p: p}
		rec := httptest.NewRecorder()
		RequireAuth(fa)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "missing bearer token")
		assert.Zero(t, fa.calls)
	})

	t.Run("malformed prefix skips lookup", func(t *testing.T) {
		fa := &fakeAuth{p: p}
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer no-dot-here")
		rec := httptest.NewRecorder()
		RequireAuth(fa)(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, fa.calls)
	})

	t.Run("rejected token", func(t *testing.T) {
		fa := &fakeAuth{err: auth.ErrUnauthorized}
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer acme.abcdef")
		rec := httptest.NewRecorder()
		RequireAuth(fa)(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 1, fa.calls)
	})

	t.Run("valid", func(t *testing.T) {
		fa := &fakeAuth{p: p}
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer acme.abcdef")
		rec := httptest.NewRecorder()
		RequireAuth(fa)(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Same(t, p, got)
		assert.Equal(t, "acme.abcdef", gotTok)
	})
}

type httpObs struct {
	mu       sync.Mutex
	inflight int
	routes   []string
	statuses []int
}

func (o *httpObs) InflightInc() { o.mu.Lock(); o.inflight++; o.mu.Unlock() }
func (o *httpObs) InflightDec() { o.mu.Lock(); o.inflight--; o.mu.Unlock() }
func (o *httpObs) ObserveHTTP(_, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, route)
	o.statuses = append(o.statuses, status)
}

func TestWithMetricsUsesRoutePattern(t *testing.T) {
	obs := &httpObs{}
	r := chi.NewRouter()
	r.Use(WithMetrics(obs))
	r.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/123", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/456", nil))

	assert.Equal(t, []string{"/users/{id}", "/users/{id}"}, obs.routes)
	assert.Equal(t, []int{http.StatusTeapot, http.StatusTeapot}, obs.statuses)
	assert.Zero(t, obs.inflight)
}

func TestHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	WithSecurityHeaders()(WithNoStore()(ok200)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestWithCORSPreflight(t *testing.T) {
	h := WithCORS([]string{"https://app.example.com/"})(ok200)

	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/config", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
