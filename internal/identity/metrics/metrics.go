package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authentication outcome labels.
const (
	OutcomeSuccess        = "success"
	OutcomeMissingToken   = "missing_token"
	OutcomeTokenExpired   = "token_expired"
	OutcomeTokenInvalid   = "token_invalid"
	OutcomeTenantUnknown  = "tenant_unknown"
	OutcomeTenantInactive = "tenant_inactive"
	OutcomeError          = "error"
)

type Metrics struct {
	Authentications      *prometheus.CounterVec
	AuthenticateDuration prometheus.Histogram
	KeySetsCached        prometheus.Gauge
	AccessDenied         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Authentications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_authentications_total",
			Help: "Bearer authentications by outcome",
		}, []string{"outcome"}),
		AuthenticateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskhub_authenticate_duration_seconds",
			Help:    "Duration of token verification plus tenant resolution",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		KeySetsCached: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskhub_realm_key_sets",
			Help: "Realms with a cached signing key set",
		}),
		AccessDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskhub_access_denied_total",
			Help: "Role gate denials by attempted action",
		}, []string{"action"}),
	}
}

func (m *Metrics) ObserveAuthentication(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Authentications.WithLabelValues(outcome).Inc()
	m.AuthenticateDuration.Observe(time.Since(start).Seconds())
}

// KeySetCreated satisfies keys.Observer.
func (m *Metrics) KeySetCreated(string) {
	if m == nil {
		return
	}
	m.KeySetsCached.Inc()
}

// KeySetForgotten satisfies keys.Observer.
func (m *Metrics) KeySetForgotten(string) {
	if m == nil {
		return
	}
	m.KeySetsCached.Dec()
}

func (m *Metrics) IncrementAccessDenied(action string) {
	if m == nil {
		return
	}
	m.AccessDenied.WithLabelValues(action).Inc()
}
