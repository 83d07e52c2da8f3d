package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks         prometheus.Counter
	Rejections     prometheus.Counter
	FallbackChecks prometheus.Counter
	CircuitOpen    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_ratelimit_org_checks_total",
			Help: "Per-organization rate limit checks",
		}),
		Rejections: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_ratelimit_org_rejections_total",
			Help: "Requests rejected by the per-organization rate limit",
		}),
		FallbackChecks: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_ratelimit_fallback_checks_total",
			Help: "Checks served by the in-memory fallback while the primary store was unavailable",
		}),
		CircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "crm_ratelimit_circuit_open",
			Help: "1 while the rate limit store circuit is open",
		}),
	}
}

func (m *Metrics) IncrementChecks() {
	m.Checks.Inc()
}

func (m *Metrics) IncrementRejections() {
	m.Rejections.Inc()
}

func (m *Metrics) IncrementFallbackChecks() {
	m.FallbackChecks.Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
