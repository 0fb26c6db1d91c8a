package modules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/shard"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/requestcontext"
)

const (
	defaultLockShards   = 64
	defaultProbeTimeout = 2 * time.Second
)

// Service governs per-tenant enablement.
type Service struct {
	registry     *Registry
	store        Store
	tx           StoreTx
	publisher    EventPublisher
	locks        *shard.Mutex
	logger       *slog.Logger
	metrics      *Metrics
	probeTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithProbeTimeout bounds each health probe. A probe that overruns reports
// unhealthy.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// New constructs a Service. store serves reads outside a toggle; tx and
// publisher make a toggle and its event atomic.
func New(registry *Registry, store Store, tx StoreTx, publisher EventPublisher, opts ...Option) *Service {
	s := &Service{
		registry:     registry,
		store:        store,
		tx:           tx,
		publisher:    publisher,
		locks:        shard.NewMutex(defaultLockShards),
		logger:       slog.Default(),
		probeTimeout: defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Registry() *Registry { return s.registry }

// ToggleModule enables or disables an optional module for a tenant. Refusals
// are *ToggleError values and leave state untouched; toggling to the current
// state succeeds without writing anything.
func (s *Service) ToggleModule(ctx context.Context, tenantID domain.TenantID, slug string, enabled bool) error {
	if tenantID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "tenant_id is required")
	}
	desc, ok := s.registry.Get(slug)
	if !ok {
		s.countToggle(slug, enabled, ResultRejected)
		return &ToggleError{Kind: UnknownModule, Slug: slug}
	}
	if desc.IsCore() {
		s.countToggle(slug, enabled, ResultRejected)
		return &ToggleError{Kind: CoreModuleCannotBeDisabled, Slug: slug}
	}

	unlock := s.locks.Lock(uuid.UUID(tenantID))
	defer unlock()

	changed := false
	err := s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		states, err := store.States(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("load module states: %w", err)
		}
		if s.enabledIn(desc, states) == enabled {
			return nil
		}
		if err := s.checkToggle(desc, states, enabled); err != nil {
			return err
		}

		if err := store.SetEnabled(ctx, tenantID, slug, enabled, requestcontext.Now(ctx)); err != nil {
			return fmt.Errorf("save module state: %w", err)
		}
		var event events.DomainEvent = events.ModuleEnabled{ModuleSlug: slug}
		if !enabled {
			event = events.ModuleDisabled{ModuleSlug: slug}
		}
		if _, err := s.publisher.Publish(ctx, tenantID, requestcontext.ActorIDPtr(ctx), event); err != nil {
			return fmt.Errorf("stage %s: %w", event.EventType(), err)
		}
		changed = true
		return nil
	})

	switch {
	case err == nil && !changed:
		s.countToggle(slug, enabled, ResultNoop)
		return nil
	case err == nil:
		s.countToggle(slug, enabled, ResultApplied)
		s.logger.InfoContext(ctx, "module toggled",
			"tenant_id", tenantID.String(),
			"module", slug,
			"enabled", enabled,
		)
		return nil
	}

	if _, refused := AsToggleError(err); refused {
		s.countToggle(slug, enabled, ResultRejected)
		return err
	}
	s.countToggle(slug, enabled, ResultError)
	s.logger.ErrorContext(ctx, "module toggle failed",
		"tenant_id", tenantID.String(),
		"module", slug,
		"enabled", enabled,
		"error", err,
	)
	if _, coded := dErrors.As(err); coded {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to toggle module")
}

// checkToggle applies the dependency rules to a state change.
func (s *Service) checkToggle(desc Descriptor, states map[string]bool, enabled bool) error {
	if enabled {
		for _, dep := range desc.Dependencies {
			target, _ := s.registry.Get(dep)
			if !s.enabledIn(target, states) {
				return &ToggleError{Kind: MissingDependency, Slug: dep}
			}
		}
		return nil
	}
	for _, slug := range s.registry.Dependents(desc.Slug) {
		dependent, _ := s.registry.Get(slug)
		if s.enabledIn(dependent, states) {
			return &ToggleError{Kind: DependentStillEnabled, Slug: slug}
		}
	}
	return nil
}

func (s *Service) enabledIn(desc Descriptor, states map[string]bool) bool {
	if desc.IsCore() {
		return true
	}
	if on, ok := states[desc.Slug]; ok {
		return on
	}
	return desc.DefaultEnabled
}

// IsEnabled reports whether slug is enabled for the tenant. Core modules are
// always enabled. An unknown slug is an error, so a handler registered under a
// typo fails loudly instead of never running.
func (s *Service) IsEnabled(ctx context.Context, tenantID domain.TenantID, slug string) (bool, error) {
	desc, ok := s.registry.Get(slug)
	if !ok {
		return false, &ToggleError{Kind: UnknownModule, Slug: slug}
	}
	if desc.IsCore() {
		return true, nil
	}
	states, err := s.store.States(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("load module states: %w", err)
	}
	return s.enabledIn(desc, states), nil
}

// EnabledModules lists the tenant's enabled modules in dependency order.
func (s *Service) EnabledModules(ctx context.Context, tenantID domain.TenantID) ([]string, error) {
	states, err := s.store.States(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load module states")
	}
	var out []string
	for _, d := range s.registry.Descriptors() {
		if s.enabledIn(d, states) {
			out = append(out, d.Slug)
		}
	}
	return out, nil
}

func (s *Service) countToggle(slug string, enabled bool, result string) {
	if s.metrics != nil {
		s.metrics.IncToggle(slug, enabled, result)
	}
}
