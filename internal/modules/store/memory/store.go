// Package memory keeps module enablement in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/AI-Fresh-Docs/RusTokio/internal/modules"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
)

type entry struct {
	enabled   bool
	updatedAt time.Time
}

// Store is an in-memory modules.Store.
type Store struct {
	mu     sync.RWMutex
	states map[domain.TenantID]map[string]entry
}

func New() *Store {
	return &Store{states: make(map[domain.TenantID]map[string]entry)}
}

func (s *Store) States(_ context.Context, tenantID domain.TenantID) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.states[tenantID]))
	for slug, e := range s.states[tenantID] {
		out[slug] = e.enabled
	}
	return out, nil
}

func (s *Store) SetEnabled(_ context.Context, tenantID domain.TenantID, slug string, enabled bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(tenantID, slug, entry{enabled: enabled, updatedAt: at})
	return nil
}

// UpdatedAt returns when the tenant last toggled slug.
func (s *Store) UpdatedAt(tenantID domain.TenantID, slug string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.states[tenantID][slug]
	return e.updatedAt, ok
}

func (s *Store) setLocked(tenantID domain.TenantID, slug string, e entry) {
	tenant := s.states[tenantID]
	if tenant == nil {
		tenant = make(map[string]entry)
		s.states[tenantID] = tenant
	}
	tenant[slug] = e
}

// Runner opens the transaction outbox rows are staged in. *tx.Runner
// satisfies it.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Tx buffers writes and applies them to the store only when fn succeeds and,
// with a Runner, only after the SQL transaction has committed.
type Tx struct {
	store  *Store
	runner Runner
}

type TxOption func(*Tx)

// WithRunner stages writes inside runner's transaction so an outbox writer
// can take part in the toggle.
func WithRunner(runner Runner) TxOption {
	return func(t *Tx) {
		t.runner = runner
	}
}

func NewTx(store *Store, opts ...TxOption) *Tx {
	t := &Tx{store: store}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tx) RunInTx(ctx context.Context, fn func(ctx context.Context, store modules.Store) error) error {
	ov := &overlay{base: t.store, pending: make(map[domain.TenantID]map[string]entry)}
	run := func(ctx context.Context) error { return fn(ctx, ov) }

	var err error
	if t.runner != nil {
		err = t.runner.RunInTx(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for tenantID, writes := range ov.pending {
		for slug, e := range writes {
			t.store.setLocked(tenantID, slug, e)
		}
	}
	return nil
}

// overlay reads through to the base store and keeps writes pending.
type overlay struct {
	base    *Store
	pending map[domain.TenantID]map[string]entry
}

func (o *overlay) States(ctx context.Context, tenantID domain.TenantID) (map[string]bool, error) {
	out, err := o.base.States(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for slug, e := range o.pending[tenantID] {
		out[slug] = e.enabled
	}
	return out, nil
}

func (o *overlay) SetEnabled(_ context.Context, tenantID domain.TenantID, slug string, enabled bool, at time.Time) error {
	writes := o.pending[tenantID]
	if writes == nil {
		writes = make(map[string]entry)
		o.pending[tenantID] = writes
	}
	writes[slug] = entry{enabled: enabled, updatedAt: at}
	return nil
}

// Snapshot copies every tenant's stored flags.
func (s *Store) Snapshot() map[domain.TenantID]map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.TenantID]map[string]bool, len(s.states))
	for tenantID, tenant := range s.states {
		flags := make(map[string]bool, len(tenant))
		for slug, e := range tenant {
			flags[slug] = e.enabled
		}
		out[tenantID] = flags
	}
	return out
}
