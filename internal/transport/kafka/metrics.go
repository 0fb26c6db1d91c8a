package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Produced      *prometheus.CounterVec
	ProduceErrors *prometheus.CounterVec
	Consumed      *prometheus.CounterVec
	DecodeErrors  prometheus.Counter
	CommitErrors  prometheus.Counter
	FetchErrors   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Produced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_kafka_produced_total",
			Help: "Envelopes acknowledged by the broker",
		}, []string{"topic"}),
		ProduceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_kafka_produce_errors_total",
			Help: "Envelopes the broker did not acknowledge",
		}, []string{"topic"}),
		Consumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_kafka_consumed_total",
			Help: "Envelopes consumed and handed to the bus",
		}, []string{"topic"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "rustokio_kafka_decode_errors_total",
			Help: "Records skipped because they did not decode to an envelope",
		}),
		CommitErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "rustokio_kafka_commit_errors_total",
			Help: "Offset commits that failed",
		}),
		FetchErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "rustokio_kafka_fetch_errors_total",
			Help: "Partition fetch errors",
		}),
	}
}
