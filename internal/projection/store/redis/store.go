// Package redis keeps processed markers in Redis so every process consuming
// the same stream shares them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
)

const (
	// DefaultKeyPrefix namespaces marker keys.
	DefaultKeyPrefix = "rustokio:processed:"
	// DefaultTTL outlives the relay's longest retry schedule by a wide margin.
	DefaultTTL = 7 * 24 * time.Hour
)

// Metrics counts marker lookups.
type Metrics struct {
	Lookups  *prometheus.CounterVec
	Duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rustokio_projection_processed_lookups_total",
			Help: "Processed marker lookups by result",
		}, []string{"result"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rustokio_projection_processed_lookup_duration_ms",
			Help:    "Latency of processed marker lookups in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
	}
}

// Store is a Redis-backed projection.ProcessedStore. A marker is a key with a
// TTL written with SET NX.
type Store struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	metrics *Metrics
}

type Option func(*Store)

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL sets marker expiry. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New constructs a store on client. The client lifecycle is managed by the
// caller.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) key(consumer string, id domain.EventID) string {
	return s.prefix + consumer + ":" + id.String()
}

func (s *Store) IsProcessed(ctx context.Context, consumer string, id domain.EventID) (bool, error) {
	start := time.Now()
	n, err := s.client.Exists(ctx, s.key(consumer, id)).Result()
	if s.metrics != nil {
		s.metrics.Duration.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}
	if err != nil {
		s.observe("error")
		return false, fmt.Errorf("%w: redis exists: %w", sentinel.ErrUnavailable, err)
	}
	if n > 0 {
		s.observe("hit")
		return true, nil
	}
	s.observe("miss")
	return false, nil
}

// MarkProcessed records the marker. A marker that already exists is kept with
// its original expiry.
func (s *Store) MarkProcessed(ctx context.Context, consumer string, id domain.EventID) error {
	err := s.client.SetArgs(ctx, s.key(consumer, id), "1", redis.SetArgs{Mode: "NX", TTL: s.ttl}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: redis set: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) observe(result string) {
	if s.metrics != nil {
		s.metrics.Lookups.WithLabelValues(result).Inc()
	}
}
