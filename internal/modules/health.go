package modules

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
)

// ModuleHealth is one row of a health report.
type ModuleHealth struct {
	Slug         string       `json:"slug"`
	Kind         Kind         `json:"kind"`
	Enabled      bool         `json:"enabled"`
	HealthStatus HealthStatus `json:"health_status"`
}

// Report aggregates module health for one tenant. Status is the worst status
// among enabled modules; disabled modules are listed but do not count.
type Report struct {
	Status  HealthStatus   `json:"status"`
	Modules []ModuleHealth `json:"modules"`
}

// Health probes every module concurrently and reports them in dependency
// order.
func (s *Service) Health(ctx context.Context, tenantID domain.TenantID) (Report, error) {
	states, err := s.store.States(ctx, tenantID)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load module states")
	}

	descs := s.registry.Descriptors()
	rows := make([]ModuleHealth, len(descs))
	var g errgroup.Group
	for i, d := range descs {
		rows[i] = ModuleHealth{Slug: d.Slug, Kind: d.Kind, Enabled: s.enabledIn(d, states)}
		g.Go(func() error {
			rows[i].HealthStatus = s.probe(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: HealthHealthy, Modules: rows}
	for _, row := range rows {
		if s.metrics != nil {
			s.metrics.SetHealth(row.Slug, row.HealthStatus)
		}
		if row.Enabled && row.HealthStatus.severity() > report.Status.severity() {
			report.Status = row.HealthStatus
		}
	}
	return report, nil
}

// probe runs one probe under the probe timeout. A probe that panics or
// overruns is unhealthy.
func (s *Service) probe(ctx context.Context, d Descriptor) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	result := make(chan HealthStatus, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.ErrorContext(ctx, "health probe panicked", "module", d.Slug, "panic", r)
				result <- HealthUnhealthy
			}
		}()
		result <- d.probe(ctx)
	}()

	select {
	case status := <-result:
		switch status {
		case HealthHealthy, HealthDegraded, HealthUnhealthy:
			return status
		default:
			return HealthUnhealthy
		}
	case <-ctx.Done():
		if s.metrics != nil {
			s.metrics.ProbeTimeouts.WithLabelValues(d.Slug).Inc()
		}
		s.logger.WarnContext(ctx, "health probe timed out", "module", d.Slug)
		return HealthUnhealthy
	}
}
