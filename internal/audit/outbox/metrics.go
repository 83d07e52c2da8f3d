package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published prometheus.Counter
	Failed    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_audit_outbox_published_total",
			Help: "Audit events delivered to Kafka",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_audit_outbox_publish_failures_total",
			Help: "Audit event publish attempts that failed and will be retried",
		}),
	}
}
