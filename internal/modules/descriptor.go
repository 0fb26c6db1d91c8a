// Package modules owns the set of known modules, their dependency graph and
// the per-tenant enablement state the dispatcher consults.
//
// The Registry is built once at startup and is immutable afterwards. The
// Service is the only writer of enablement state: toggles for one tenant are
// serialized, checked against the dependency rules, and persisted together
// with a ModuleEnabled or ModuleDisabled event in one transaction.
package modules

import (
	"context"
	"fmt"
)

// Kind distinguishes modules that are always on from those tenants toggle.
type Kind string

const (
	KindCore     Kind = "core"
	KindOptional Kind = "optional"
)

func (k Kind) IsValid() bool {
	return k == KindCore || k == KindOptional
}

// HealthStatus is a module's self-reported condition.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// severity orders statuses so the worst one wins an aggregation.
func (h HealthStatus) severity() int {
	switch h {
	case HealthHealthy:
		return 0
	case HealthDegraded:
		return 1
	default:
		return 2
	}
}

// HealthFunc probes a module. It should honour ctx and return promptly.
type HealthFunc func(ctx context.Context) HealthStatus

// Descriptor declares one module.
type Descriptor struct {
	Slug        string
	Name        string
	Description string
	Version     string
	Kind        Kind
	// Dependencies must be enabled before this module can be.
	Dependencies []string
	// DefaultEnabled applies to optional modules a tenant never toggled.
	DefaultEnabled bool
	// Health is optional; a module without a probe reports healthy.
	Health HealthFunc
}

func (d Descriptor) IsCore() bool { return d.Kind == KindCore }

func (d Descriptor) probe(ctx context.Context) HealthStatus {
	if d.Health == nil {
		return HealthHealthy
	}
	return d.Health(ctx)
}

func (d Descriptor) validate() error {
	if d.Slug == "" {
		return fmt.Errorf("module slug is required")
	}
	if !d.Kind.IsValid() {
		return fmt.Errorf("module %q: invalid kind %q", d.Slug, d.Kind)
	}
	seen := make(map[string]struct{}, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep == d.Slug {
			return fmt.Errorf("module %q depends on itself", d.Slug)
		}
		if _, dup := seen[dep]; dup {
			return fmt.Errorf("module %q lists dependency %q twice", d.Slug, dep)
		}
		seen[dep] = struct{}{}
	}
	return nil
}
