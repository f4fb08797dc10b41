package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application-level Prometheus metrics. Transition-specific
// counters live with the statemachine package.
type Metrics struct {
	UsersCreated      prometheus.Counter
	PropertiesCreated prometheus.Counter
	AuthzDenials      *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
}

// New creates and registers all application Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		UsersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "realhub_users_created_total",
			Help: "Total number of users registered",
		}),
		PropertiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "realhub_properties_created_total",
			Help: "Total number of property listings created",
		}),
		AuthzDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "realhub_authz_denials_total",
			Help: "Authorization denials by action and reason",
		}, []string{"action", "reason"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "realhub_events_published_total",
			Help: "Domain events handed to the publisher, by event name",
		}, []string{"name"}),
	}
}

func (m *Metrics) IncUsersCreated()      { m.UsersCreated.Inc() }
func (m *Metrics) IncPropertiesCreated() { m.PropertiesCreated.Inc() }

func (m *Metrics) IncAuthzDenial(action, reason string) {
	m.AuthzDenials.WithLabelValues(action, reason).Inc()
}

func (m *Metrics) IncEventPublished(name string) {
	m.EventsPublished.WithLabelValues(name).Inc()
}
