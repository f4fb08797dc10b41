package statemachine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks transition outcomes across all entity kinds.
type Metrics struct {
	applied  *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		applied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "realhub_transitions_applied_total",
			Help: "Status transitions committed, by entity kind and target state",
		}, []string{"kind", "to"}),
		rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "realhub_transitions_rejected_total",
			Help: "Status transitions rejected, by entity kind and error code",
		}, []string{"kind", "code"}),
	}
}

func (m *Metrics) IncApplied(kind, to string)    { m.applied.WithLabelValues(kind, to).Inc() }
func (m *Metrics) IncRejected(kind, code string) { m.rejected.WithLabelValues(kind, code).Inc() }
