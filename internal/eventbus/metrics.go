package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published     *prometheus.CounterVec
	NoSubscribers prometheus.Counter
	Dropped       prometheus.Counter
	Subscribers   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_eventbus_events_published_total",
			Help: "Envelopes delivered to at least one subscription",
		}, []string{"event_type"}),
		NoSubscribers: f.NewCounter(prometheus.CounterOpts{
			Name: "rustokio_eventbus_events_no_subscribers_total",
			Help: "Envelopes published while nobody was subscribed",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "rustokio_eventbus_events_dropped_total",
			Help: "Envelopes rejected by a closed bus or lost by a forwarder",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "rustokio_eventbus_subscribers",
			Help: "Current number of bus subscriptions",
		}),
	}
}

func (m *Metrics) IncPublished(eventType string) {
	m.Published.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncNoSubscribers() {
	m.NoSubscribers.Inc()
}

func (m *Metrics) IncDropped() {
	m.Dropped.Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	m.Subscribers.Set(float64(n))
}
