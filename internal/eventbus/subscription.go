package eventbus

import (
	"context"
	"sync"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
)

// Subscription is one reader's view of the bus.
type Subscription struct {
	id  uint64
	bus *Bus

	mu     sync.Mutex
	queue  []events.Envelope
	closed bool
	// ready holds at most one wake-up token.
	ready chan struct{}
	done  chan struct{}
}

func newSubscription(bus *Bus, id uint64) *Subscription {
	return &Subscription{
		id:    id,
		bus:   bus,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (s *Subscription) push(env events.Envelope) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, env)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Recv blocks until an envelope is available. Envelopes queued before the
// subscription closed are still returned; after that Recv fails with
// sentinel.ErrClosed.
func (s *Subscription) Recv(ctx context.Context) (events.Envelope, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			env := s.queue[0]
			s.queue[0] = events.Envelope{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return env, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return events.Envelope{}, sentinel.ErrClosed
		}

		select {
		case <-s.ready:
		case <-s.done:
		case <-ctx.Done():
			return events.Envelope{}, ctx.Err()
		}
	}
}

// Pending returns the number of queued envelopes.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Done is closed once the subscription stops receiving new envelopes.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe detaches the subscription from the bus. It is safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.id)
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
