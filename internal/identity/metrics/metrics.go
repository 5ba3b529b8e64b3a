package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for identity reconciliation.
type Metrics struct {
	ReconcileTotal  *prometheus.CounterVec
	ContactsCreated *prometheus.CounterVec
	ClustersMerged  prometheus.Counter
	GroupSize       prometheus.Histogram
}

// Reconcile outcome labels.
const (
	OutcomeCreatedPrimary   = "created_primary"
	OutcomeCreatedSecondary = "created_secondary"
	OutcomeRedundant        = "redundant"
	OutcomeError            = "error"
)

// New creates and registers all identity metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		ReconcileTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "linkage_reconcile_total",
			Help: "Total reconcile operations by outcome",
		}, []string{"outcome"}),
		ContactsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "linkage_contacts_created_total",
			Help: "Total contact rows created by link precedence",
		}, []string{"precedence"}),
		ClustersMerged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkage_clusters_merged_total",
			Help: "Total primary contacts demoted into an older cluster",
		}),
		GroupSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkage_cluster_group_size",
			Help:    "Resolved cluster sizes at reconcile time",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
	}
}

// ObserveOutcome increments the reconcile counter for one outcome.
func (m *Metrics) ObserveOutcome(outcome string) {
	m.ReconcileTotal.WithLabelValues(outcome).Inc()
}

// ObserveContactCreated increments the creation counter for one precedence.
func (m *Metrics) ObserveContactCreated(precedence string) {
	m.ContactsCreated.WithLabelValues(precedence).Inc()
}
