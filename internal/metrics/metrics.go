// Package metrics expone contadores Prometheus para autenticacion y cache.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa los contadores; un *Metrics nil es valido y no registra nada.
type Metrics struct {
	signIns      *prometheus.CounterVec
	cacheFailure *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
	redirects    *prometheus.CounterVec
}

// New registra los contadores en reg. Con reg nil usa prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		signIns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anoint",
			Subsystem: "auth",
			Name:      "sign_ins_total",
			Help:      "Sign-in attempts by outcome code.",
		}, []string{"outcome"}),
		cacheFailure: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anoint",
			Subsystem: "cache",
			Name:      "fail_open_total",
			Help:      "Cache operations that failed and were treated as a miss.",
		}, []string{"op"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anoint",
			Subsystem: "cache",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate-limit counter.",
		}, []string{"kind"}),
		redirects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anoint",
			Subsystem: "policy",
			Name:      "redirects_total",
			Help:      "Route guard redirects by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) SignIn(outcome string) {
	if m == nil {
		return
	}
	m.signIns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheFailOpen(op string) {
	if m == nil {
		return
	}
	m.cacheFailure.WithLabelValues(op).Inc()
}

func (m *Metrics) RateLimited(kind string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(kind).Inc()
}

func (m *Metrics) Redirect(reason string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(reason).Inc()
}
