// Package memory keeps processed markers in process memory. Markers are lost
// on restart, so it suits tests and single-process development setups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
)

type key struct {
	consumer string
	id       domain.EventID
}

// Store is an in-memory projection.ProcessedStore.
type Store struct {
	mu     sync.RWMutex
	marked map[key]time.Time
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL expires markers after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		marked: make(map[key]time.Time),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) IsProcessed(_ context.Context, consumer string, id domain.EventID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.marked[key{consumer, id}]
	if !ok {
		return false, nil
	}
	if s.ttl > 0 && s.now().Sub(at) >= s.ttl {
		return false, nil
	}
	return true, nil
}

func (s *Store) MarkProcessed(_ context.Context, consumer string, id domain.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked[key{consumer, id}] = s.now()
	return nil
}

// Len reports the number of stored markers, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.marked)
}
