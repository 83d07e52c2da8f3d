package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons used as the "reason" label of TransitionsRejected.
const (
	ReasonInvalidTransition = "invalid_transition"
	ReasonValidation        = "validation"
	ReasonNotFound          = "not_found"
	ReasonConflict          = "conflict"
	ReasonPersistence       = "persistence"
)

// Metrics covers dossier lifecycle operations.
type Metrics struct {
	DossiersCreated     prometheus.Counter
	DossiersDeleted     prometheus.Counter
	LeadUpdates         prometheus.Counter
	Transitions         *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
	DuplicateWarnings   prometheus.Counter
	OperationDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DossiersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_dossiers_created_total",
			Help: "Dossiers created",
		}),
		DossiersDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_dossiers_deleted_total",
			Help: "Dossiers deleted",
		}),
		LeadUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_dossier_lead_updates_total",
			Help: "Lead updates that changed at least one field",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_dossier_transitions_total",
			Help: "Committed status transitions by source and target status",
		}, []string{"from", "to"}),
		TransitionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_dossier_transitions_rejected_total",
			Help: "Status transitions that did not commit, by reason",
		}, []string{"reason"}),
		DuplicateWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_dossier_duplicate_warnings_total",
			Help: "Dossier creations that matched an open dossier with the same phone",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crm_dossier_operation_duration_seconds",
			Help:    "Duration of dossier service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.DossiersCreated.Inc()
}

func (m *Metrics) IncrementDeleted() {
	m.DossiersDeleted.Inc()
}

func (m *Metrics) IncrementLeadUpdates() {
	m.LeadUpdates.Inc()
}

func (m *Metrics) IncrementTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementRejected(reason string) {
	m.TransitionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementDuplicateWarnings() {
	m.DuplicateWarnings.Inc()
}

// ObserveOperation records the duration of op. Call with time.Now() at the start.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
