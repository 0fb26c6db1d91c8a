package circuit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports breaker state and transitions.
type Metrics struct {
	State       *prometheus.GaugeVec
	Transitions *prometheus.CounterVec
}

// NewMetrics registers breaker metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rustokio_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
		}, []string{"name"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		}, []string{"name", "from", "to"}),
	}
}

// Observe is a StateChangeFunc that records a transition.
func (m *Metrics) Observe(name string, from, to State) {
	m.State.WithLabelValues(name).Set(float64(to))
	m.Transitions.WithLabelValues(name, from.String(), to.String()).Inc()
}
