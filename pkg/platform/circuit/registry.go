package circuit

import (
	"sort"
	"sync"
)

// Registry hands out one named breaker per call site. Breakers are created on
// first use with the default config or the per-name override.
type Registry struct {
	mu        sync.Mutex
	defaults  Config
	overrides map[string]Config
	breakers  map[string]*Breaker
	opts      []Option
}

// NewRegistry creates a registry. opts are applied to every breaker it creates
// (clock, state-change hooks).
func NewRegistry(defaults Config, opts ...Option) *Registry {
	return &Registry{
		defaults:  defaults,
		overrides: make(map[string]Config),
		breakers:  make(map[string]*Breaker),
		opts:      opts,
	}
}

// Configure sets the config used when the named breaker is first created.
// It has no effect on a breaker that already exists.
func (r *Registry) Configure(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = cfg
}

// Get returns the breaker for name, creating it if needed.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg, ok := r.overrides[name]
	if !ok {
		cfg = r.defaults
	}
	opts := append([]Option{WithConfig(cfg)}, r.opts...)
	b := New(name, opts...)
	r.breakers[name] = b
	return b
}

// Snapshots lists every breaker sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
