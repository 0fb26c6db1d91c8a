package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/AI-Fresh-Docs/RusTokio/internal/eventbus"
	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
)

type consumerClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	Close()
}

// Consumer reads both topics as a group member and hands each envelope to a
// local publisher, usually the event bus. Offsets are committed only for
// records that were handed over, so a crash redelivers at least once.
type Consumer struct {
	client  consumerClient
	target  eventbus.Publisher
	logger  *slog.Logger
	metrics *Metrics
}

type ConsumerOption func(*Consumer)

func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func WithConsumerMetrics(m *Metrics) ConsumerOption {
	return func(c *Consumer) {
		c.metrics = m
	}
}

func withConsumerClient(cl consumerClient) ConsumerOption {
	return func(c *Consumer) {
		c.client = cl
	}
}

func NewConsumer(cfg Config, target eventbus.Publisher, opts ...ConsumerOption) (*Consumer, error) {
	if target == nil {
		return nil, errors.New("kafka consumer requires a target publisher")
	}
	cfg = cfg.withDefaults()
	c := &Consumer{
		target: target,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		client, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Brokers...),
			kgo.ClientID(cfg.ClientID),
			kgo.ConsumerGroup(cfg.GroupID),
			kgo.ConsumeTopics(cfg.Topics().All()...),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
			kgo.DisableAutoCommit(),
		)
		if err != nil {
			return nil, fmt.Errorf("create kafka consumer: %w", err)
		}
		c.client = client
	}
	c.logger.Info("kafka consumer initialized",
		"brokers", cfg.Brokers,
		"group_id", cfg.GroupID,
	)
	return c, nil
}

// Run polls until ctx is cancelled or the client is closed. It returns an
// error only when the target rejects an envelope, in which case that record
// and everything after it in the fetch stay uncommitted.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			if c.metrics != nil {
				c.metrics.FetchErrors.Inc()
			}
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		handled, err := c.handle(ctx, fetches)
		if len(handled) > 0 {
			if cerr := c.client.CommitRecords(ctx, handled...); cerr != nil {
				if c.metrics != nil {
					c.metrics.CommitErrors.Inc()
				}
				c.logger.ErrorContext(ctx, "failed to commit offsets", "error", cerr)
			}
		}
		if err != nil {
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, fetches kgo.Fetches) ([]*kgo.Record, error) {
	var handled []*kgo.Record
	iter := fetches.RecordIter()
	for !iter.Done() {
		rec := iter.Next()
		env, err := events.Decode(rec.Value)
		if err != nil {
			// Undecodable records are skipped and committed so they cannot
			// block the partition.
			if c.metrics != nil {
				c.metrics.DecodeErrors.Inc()
			}
			c.logger.WarnContext(ctx, "skipping undecodable record",
				"topic", rec.Topic,
				"partition", rec.Partition,
				"offset", rec.Offset,
				"error", err,
			)
			handled = append(handled, rec)
			continue
		}
		if err := c.target.Publish(ctx, env); err != nil {
			return handled, fmt.Errorf("hand off %s: %w", env.ID(), err)
		}
		if c.metrics != nil {
			c.metrics.Consumed.WithLabelValues(rec.Topic).Inc()
		}
		handled = append(handled, rec)
	}
	return handled, nil
}

func (c *Consumer) Close() {
	c.client.Close()
	c.logger.Info("kafka consumer closed")
}
