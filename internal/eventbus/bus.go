// Package eventbus is the in-process publish/subscribe channel between the
// outbox relay and the dispatcher.
//
// Every subscription gets its own unbounded queue, so Publish never blocks on
// a slow reader. Envelopes reach each subscription in publish order. Late
// subscribers see only envelopes published after they subscribed.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
)

// Publisher hands an envelope to an external transport.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Bus fans envelopes out to subscriptions.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Bus.
type Option func(*Bus)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[uint64]*Subscription),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers env to every live subscription. Publishing with no
// subscribers is a successful no-op. It only fails once the bus is closed.
func (b *Bus) Publish(ctx context.Context, env events.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		if b.metrics != nil {
			b.metrics.IncDropped()
		}
		return sentinel.ErrClosed
	}
	if len(b.subs) == 0 {
		b.logger.DebugContext(ctx, "event published with no subscribers",
			"event_id", env.ID().String(),
			"event_type", env.EventType(),
		)
		if b.metrics != nil {
			b.metrics.IncNoSubscribers()
		}
		return nil
	}
	for _, sub := range b.subs {
		sub.push(env)
	}
	if b.metrics != nil {
		b.metrics.IncPublished(env.EventType())
	}
	return nil
}

// Subscribe registers a new independent subscription. On a closed bus the
// returned subscription is already closed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := newSubscription(b, b.nextID)
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[sub.id] = sub
	b.reportSubscribersLocked()
	return sub
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends delivery to every subscription. Further publishes fail with
// sentinel.ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.close()
		delete(b.subs, id)
	}
	b.reportSubscribersLocked()
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		sub.close()
		delete(b.subs, id)
		b.reportSubscribersLocked()
	}
}

func (b *Bus) reportSubscribersLocked() {
	if b.metrics != nil {
		b.metrics.SetSubscribers(len(b.subs))
	}
}

// Forward copies every envelope published from now on to pub until ctx is
// cancelled or the bus closes. Transport errors are logged and counted; they
// never reach the publisher of the original envelope. The returned channel is
// closed when the forwarder exits.
func (b *Bus) Forward(ctx context.Context, pub Publisher) <-chan struct{} {
	sub := b.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer sub.Unsubscribe()
		for {
			env, err := sub.Recv(ctx)
			if err != nil {
				return
			}
			if err := pub.Publish(ctx, env); err != nil {
				if b.metrics != nil {
					b.metrics.IncDropped()
				}
				b.logger.WarnContext(ctx, "failed to forward event",
					"event_id", env.ID().String(),
					"event_type", env.EventType(),
					"tenant_id", env.TenantID().String(),
					"error", err,
				)
			}
		}
	}()
	return done
}
