package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit trail.
type Metrics struct {
	EventsRecorded  *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// New registers the audit metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_audit_events_recorded_total",
			Help: "Audit events appended, by entity type and action",
		}, []string{"entity_type", "action"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_audit_persist_failures_total",
			Help: "Audit appends that failed and aborted their mutation",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crm_audit_persist_duration_seconds",
			Help:    "Duration of audit appends",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncrementRecorded(entityType, action string) {
	m.EventsRecorded.WithLabelValues(entityType, action).Inc()
}

func (m *Metrics) IncrementPersistFailures() {
	m.PersistFailures.Inc()
}

// ObservePersist records the duration of an append. Call with time.Now() at the start.
func (m *Metrics) ObservePersist(start time.Time) {
	m.PersistDuration.Observe(time.Since(start).Seconds())
}
