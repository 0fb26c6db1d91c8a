package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Handler outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
	// OutcomeCancelled marks a call abandoned because a fail-fast sibling failed.
	OutcomeCancelled = "cancelled"
)

type Metrics struct {
	Handled         *prometheus.CounterVec
	Retries         *prometheus.CounterVec
	Panics          *prometheus.CounterVec
	Backpressure    prometheus.Counter
	QueueDepth      prometheus.Gauge
	HandlerDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Handled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_dispatcher_handled_total",
			Help: "Handler invocations by final outcome",
		}, []string{"module", "handler", "outcome"}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_dispatcher_retries_total",
			Help: "Handler retries after a failed call",
		}, []string{"module", "handler"}),
		Panics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_dispatcher_panics_total",
			Help: "Recovered handler panics",
		}, []string{"module", "handler"}),
		Backpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "rustokio_dispatcher_backpressure_total",
			Help: "Envelopes rejected because a partition queue was full",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "rustokio_dispatcher_queue_depth",
			Help: "Envelopes waiting in partition queues",
		}),
		HandlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rustokio_dispatcher_handler_duration_seconds",
			Help:    "Duration of one handler call including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"module"}),
	}
}

func (m *Metrics) ObserveHandled(module, handler, outcome string, seconds float64) {
	m.Handled.WithLabelValues(module, handler, outcome).Inc()
	if outcome != OutcomeSkipped && outcome != OutcomeCancelled {
		m.HandlerDuration.WithLabelValues(module).Observe(seconds)
	}
}

func (m *Metrics) IncRetries(module, handler string) {
	m.Retries.WithLabelValues(module, handler).Inc()
}

func (m *Metrics) IncPanics(module, handler string) {
	m.Panics.WithLabelValues(module, handler).Inc()
}
