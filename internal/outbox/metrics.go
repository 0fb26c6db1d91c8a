package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Delivered     prometheus.Counter
	Rescheduled   prometheus.Counter
	DeadLettered  prometheus.Counter
	Requeued      prometheus.Counter
	Pending       prometheus.Gauge
	Failed        prometheus.Gauge
	BatchSize     prometheus.Histogram
	BatchDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Delivered: f.NewCounter(prometheus.CounterOpts{
			Name: "rustokio_outbox_delivered_total",
			Help: "Outbox records handed off successfully",
		}),
		Rescheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "rustokio_outbox_rescheduled_total",
			Help: "Failed hand-offs scheduled for another attempt",
		}),
		DeadLettered: f.NewCounter(prometheus.CounterOpts{
			Name: "rustokio_outbox_dead_lettered_total",
			Help: "Outbox records that exhausted their attempts",
		}),
		Requeued: f.NewCounter(prometheus.CounterOpts{
			Name: "rustokio_outbox_requeued_total",
			Help: "Failed outbox records moved back to pending by an operator",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "rustokio_outbox_pending",
			Help: "Outbox records awaiting delivery",
		}),
		Failed: f.NewGauge(prometheus.GaugeOpts{
			Name: "rustokio_outbox_failed",
			Help: "Outbox records in the failed state",
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rustokio_outbox_batch_size",
			Help:    "Records claimed per relay tick",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rustokio_outbox_batch_duration_seconds",
			Help:    "Time spent processing one claimed batch",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveBatch(size int, seconds float64) {
	m.BatchSize.Observe(float64(size))
	m.BatchDuration.Observe(seconds)
}

func (m *Metrics) SetStats(s Stats) {
	m.Pending.Set(float64(s.Pending))
	m.Failed.Set(float64(s.Failed))
}
