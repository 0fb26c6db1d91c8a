package modules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Toggle results.
const (
	ResultApplied  = "applied"
	ResultNoop     = "noop"
	ResultRejected = "rejected"
	ResultError    = "error"
)

type Metrics struct {
	Toggles       *prometheus.CounterVec
	Health        *prometheus.GaugeVec
	ProbeTimeouts *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Toggles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_modules_toggles_total",
			Help: "Module toggle requests by module, requested state and result",
		}, []string{"module", "enabled", "result"}),
		Health: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rustokio_modules_health_status",
			Help: "Last probed module health: 0 healthy, 1 degraded, 2 unhealthy",
		}, []string{"module"}),
		ProbeTimeouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_modules_probe_timeouts_total",
			Help: "Health probes that did not answer in time",
		}, []string{"module"}),
	}
}

func (m *Metrics) IncToggle(module string, enabled bool, result string) {
	state := "false"
	if enabled {
		state = "true"
	}
	m.Toggles.WithLabelValues(module, state, result).Inc()
}

func (m *Metrics) SetHealth(module string, status HealthStatus) {
	m.Health.WithLabelValues(module).Set(float64(status.severity()))
}
