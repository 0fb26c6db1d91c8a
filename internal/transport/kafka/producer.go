package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
)

// Record headers.
const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

type producerClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Producer publishes envelopes. It satisfies the relay's publisher contract:
// Publish returns only once the broker acknowledged the record.
type Producer struct {
	client  producerClient
	cfg     Config
	topics  Topics
	logger  *slog.Logger
	metrics *Metrics
}

type ProducerOption func(*Producer)

func WithProducerLogger(logger *slog.Logger) ProducerOption {
	return func(p *Producer) {
		p.logger = logger
	}
}

func WithProducerMetrics(m *Metrics) ProducerOption {
	return func(p *Producer) {
		p.metrics = m
	}
}

func withProducerClient(c producerClient) ProducerOption {
	return func(p *Producer) {
		p.client = c
	}
}

// NewProducer connects a producer. Every record waits for all in-sync
// replicas, and idempotent writes keep retries from duplicating records
// within a partition.
func NewProducer(cfg Config, opts ...ProducerOption) (*Producer, error) {
	cfg = cfg.withDefaults()
	p := &Producer{
		cfg:    cfg,
		topics: cfg.Topics(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		client, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Brokers...),
			kgo.ClientID(cfg.ClientID),
			kgo.RequiredAcks(kgo.AllISRAcks()),
			kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
		)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		p.client = client
	}
	p.logger.Info("kafka producer initialized",
		"brokers", cfg.Brokers,
		"domain_topic", p.topics.Domain,
		"system_topic", p.topics.System,
	)
	return p, nil
}

// Record builds the Kafka record for env without sending it.
func (p *Producer) Record(env events.Envelope) (*kgo.Record, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return &kgo.Record{
		Topic: p.topics.For(env.EventType()),
		Key:   []byte(env.TenantID().String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(env.EventType())},
			{Key: HeaderEventID, Value: []byte(env.ID().String())},
		},
	}, nil
}

// Publish sends env and waits for the acknowledgement.
func (p *Producer) Publish(ctx context.Context, env events.Envelope) error {
	rec, err := p.Record(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProduceTimeout)
	defer cancel()

	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		if p.metrics != nil {
			p.metrics.ProduceErrors.WithLabelValues(rec.Topic).Inc()
		}
		p.logger.ErrorContext(ctx, "failed to produce envelope",
			"topic", rec.Topic,
			"event_id", env.ID().String(),
			"tenant_id", env.TenantID().String(),
			"error", err,
		)
		return fmt.Errorf("%w: produce to %s: %w", sentinel.ErrUnavailable, rec.Topic, err)
	}
	if p.metrics != nil {
		p.metrics.Produced.WithLabelValues(rec.Topic).Inc()
	}
	p.logger.DebugContext(ctx, "produced envelope",
		"topic", rec.Topic,
		"event_id", env.ID().String(),
	)
	return nil
}

func (p *Producer) Topics() Topics { return p.topics }

func (p *Producer) Close() {
	p.client.Close()
	p.logger.Info("kafka producer closed")
}
