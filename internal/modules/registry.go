package modules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
)

// CycleError reports modules whose dependencies form at least one cycle.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return "module dependency cycle among: " + strings.Join(e.Members, ", ")
}

// Registry is the immutable set of modules known to the process.
type Registry struct {
	bySlug     map[string]Descriptor
	order      []string
	position   map[string]int
	dependents map[string][]string
}

// NewRegistry validates descriptors and orders them so every module follows
// its dependencies. Slugs must be unique and well formed, dependencies must be
// known, a core module may only depend on core modules, an optional module
// enabled by default may only depend on modules that are also on by default,
// and the graph must be acyclic.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		bySlug:     make(map[string]Descriptor, len(descriptors)),
		dependents: make(map[string][]string),
	}

	var errs []error
	for _, d := range descriptors {
		if err := d.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := events.ValidateSlug("slug", d.Slug); err != nil {
			errs = append(errs, fmt.Errorf("module %q: %w", d.Slug, err))
			continue
		}
		if _, dup := r.bySlug[d.Slug]; dup {
			errs = append(errs, fmt.Errorf("module %q registered twice", d.Slug))
			continue
		}
		d.Dependencies = append([]string(nil), d.Dependencies...)
		r.bySlug[d.Slug] = d
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, d := range r.bySlug {
		for _, dep := range d.Dependencies {
			target, ok := r.bySlug[dep]
			if !ok {
				errs = append(errs, fmt.Errorf("module %q depends on unknown module %q", d.Slug, dep))
				continue
			}
			if d.IsCore() && !target.IsCore() {
				errs = append(errs, fmt.Errorf("core module %q cannot depend on optional module %q", d.Slug, dep))
			}
			if !d.IsCore() && d.DefaultEnabled && !target.IsCore() && !target.DefaultEnabled {
				errs = append(errs, fmt.Errorf("module %q is enabled by default but its dependency %q is not", d.Slug, dep))
			}
			r.dependents[dep] = append(r.dependents[dep], d.Slug)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	order, err := topoSort(r.bySlug)
	if err != nil {
		return nil, err
	}
	r.order = order
	r.position = make(map[string]int, len(order))
	for i, slug := range order {
		r.position[slug] = i
	}
	for slug := range r.dependents {
		r.sortByOrder(r.dependents[slug])
	}
	return r, nil
}

// topoSort is Kahn's algorithm with ties broken by slug so the order is
// stable across runs.
func topoSort(mods map[string]Descriptor) ([]string, error) {
	indegree := make(map[string]int, len(mods))
	next := make(map[string][]string, len(mods))
	for slug, d := range mods {
		indegree[slug] += 0
		for _, dep := range d.Dependencies {
			indegree[slug]++
			next[dep] = append(next[dep], slug)
		}
	}

	var ready []string
	for slug, n := range indegree {
		if n == 0 {
			ready = append(ready, slug)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(mods))
	for len(ready) > 0 {
		slug := ready[0]
		ready = ready[1:]
		order = append(order, slug)

		var unlocked []string
		for _, m := range next[slug] {
			indegree[m]--
			if indegree[m] == 0 {
				unlocked = append(unlocked, m)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	if len(order) < len(mods) {
		var members []string
		for slug, n := range indegree {
			if n > 0 {
				members = append(members, slug)
			}
		}
		sort.Strings(members)
		return nil, &CycleError{Members: members}
	}
	return order, nil
}

func (r *Registry) sortByOrder(slugs []string) {
	sort.Slice(slugs, func(i, j int) bool { return r.position[slugs[i]] < r.position[slugs[j]] })
}

// Get returns the descriptor for slug.
func (r *Registry) Get(slug string) (Descriptor, bool) {
	d, ok := r.bySlug[slug]
	return d, ok
}

// Has reports whether slug is registered.
func (r *Registry) Has(slug string) bool {
	_, ok := r.bySlug[slug]
	return ok
}

// Len returns the number of registered modules.
func (r *Registry) Len() int { return len(r.order) }

// Order lists slugs with every module after its dependencies.
func (r *Registry) Order() []string {
	return append([]string(nil), r.order...)
}

// Descriptors lists descriptors in dependency order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.bySlug[slug])
	}
	return out
}

// Dependents lists the modules that directly depend on slug, in dependency
// order.
func (r *Registry) Dependents(slug string) []string {
	return append([]string(nil), r.dependents[slug]...)
}
