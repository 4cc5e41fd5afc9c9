// Package metrics define los collectors Prometheus del servicio: HTTP,
// eventos de auth (implementa auth.Observer) y conexiones de store.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/authcore/internal/store"
)

const namespace = "authcore"

// StatsSource expone las conexiones de store abiertas (store.Manager).
type StatsSource interface {
	Stats() []store.ConnStats
}

// Metrics agrupa los collectors. Cada instancia tiene su propio registry,
// así que varios servidores (o tests) pueden convivir en el proceso.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInflight prometheus.Gauge
	authAttempts *prometheus.CounterVec
	otpIssued    *prometheus.CounterVec
	otpVerified  *prometheus.CounterVec
	purged       *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
	sweeps       prometheus.Counter
}

// New crea y registra los collectors. stores puede ser nil.
func New(stores StatsSource) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Número total de requests procesadas",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latencia de los requests HTTP",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "Requests en vuelo",
		}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Intentos de autenticación por método y resultado",
		}, []string{"method", "outcome"}),
		otpIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_issued_total",
			Help:      "Códigos OTP emitidos por canal",
		}, []string{"channel"}),
		otpVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "Verificaciones de OTP por resultado",
		}, []string{"outcome"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_purged_total",
			Help:      "Registros vencidos eliminados por el sweeper",
		}, []string{"kind"}), // kind: session|otp
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rechazadas por rate limit",
		}, []string{"scope"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Barridos ejecutados",
		}),
	}
	m.reg.MustRegister(
		m.httpRequests, m.httpDuration, m.httpInflight,
		m.authAttempts, m.otpIssued, m.otpVerified,
		m.purged, m.rateLimited, m.sweeps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if stores != nil {
		m.reg.MustRegister(newStoreCollector(stores))
	}
	return m
}

// Registry permite registrar collectors extra.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler sirve /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ─── HTTP ───

func (m *Metrics) InflightInc() { m.httpInflight.Inc() }
func (m *Metrics) InflightDec() { m.httpInflight.Dec() }

// ObserveHTTP registra un request terminado. route es el patrón del
// router ("/users/{id}"), nunca el path crudo.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RateLimited(scope string) { m.rateLimited.WithLabelValues(scope).Inc() }

// ─── auth.Observer ───

func (m *Metrics) AuthAttempt(method, outcome string) {
	m.authAttempts.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) OTPIssued(channel string) { m.otpIssued.WithLabelValues(channel).Inc() }

func (m *Metrics) OTPVerified(outcome string) { m.otpVerified.WithLabelValues(outcome).Inc() }

func (m *Metrics) Swept(st store.PurgeStats) {
	m.sweeps.Inc()
	m.purged.WithLabelValues("session").Add(float64(st.Sessions))
	m.purged.WithLabelValues("otp").Add(float64(st.OTPs))
}

// ─── Store ───

// storeCollector expone las conexiones abiertas por driver.
type storeCollector struct {
	src      StatsSource
	connDesc *prometheus.Desc
	ageDesc  *prometheus.Desc
}

func newStoreCollector(src StatsSource) *storeCollector {
	return &storeCollector{
		src:      src,
		connDesc: prometheus.NewDesc(namespace+"_store_connections", "Conexiones de store abiertas por driver", []string{"driver"}, nil),
		ageDesc:  prometheus.NewDesc(namespace+"_store_connection_age_seconds", "Antigüedad de cada conexión de store", []string{"key", "driver"}, nil),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connDesc
	ch <- c.ageDesc
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.Stats()
	byDriver := map[string]int{}
	for _, s := range stats {
		byDriver[s.Driver]++
		ch <- prometheus.MustNewConstMetric(c.ageDesc, prometheus.GaugeValue, time.Since(s.OpenedAt).Seconds(), s.Key, s.Driver)
	}
	for d, n := range byDriver {
		ch <- prometheus.MustNewConstMetric(c.connDesc, prometheus.GaugeValue, float64(n), d)
	}
}
