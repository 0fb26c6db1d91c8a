package httptransport

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/AI-Fresh-Docs/RusTokio/internal/modules"
	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox"
	"github.com/AI-Fresh-Docs/RusTokio/internal/projection"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/circuit"
)

// ModuleService is the lifecycle surface the handlers need.
type ModuleService interface {
	ToggleModule(ctx context.Context, tenantID domain.TenantID, slug string, enabled bool) error
	EnabledModules(ctx context.Context, tenantID domain.TenantID) ([]string, error)
	Health(ctx context.Context, tenantID domain.TenantID) (modules.Report, error)
}

// OutboxAdmin inspects and repairs the outbox.
type OutboxAdmin interface {
	ListFailed(ctx context.Context, limit int) ([]outbox.Record, error)
	Requeue(ctx context.Context, id domain.EventID) error
	Stats(ctx context.Context) (outbox.Stats, error)
}

// BreakerSource lists breaker states.
type BreakerSource interface {
	Snapshots() []circuit.Snapshot
}

// CatalogReader reads the index projection.
type CatalogReader interface {
	List(tenantID domain.TenantID, kind string) []projection.Entry
}

// Handler is the thin HTTP layer. It delegates to services without embedding
// business logic so transport concerns remain isolated.
type Handler struct {
	modules  ModuleService
	outbox   OutboxAdmin
	breakers BreakerSource
	catalog  CatalogReader
	logger   *slog.Logger
}

func NewHandler(modules ModuleService, outbox OutboxAdmin, breakers BreakerSource, catalog CatalogReader, logger *slog.Logger) *Handler {
	return &Handler{
		modules:  modules,
		outbox:   outbox,
		breakers: breakers,
		catalog:  catalog,
		logger:   logger,
	}
}

// RegisterAdmin mounts the admin endpoints on r, which is expected to be
// guarded already.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/tenants/{tenantID}/modules", h.HandleListModules)
	r.Put("/tenants/{tenantID}/modules/{slug}", h.HandleToggleModule)
	r.Get("/tenants/{tenantID}/catalog", h.HandleCatalog)
	r.Get("/outbox/failed", h.HandleListFailed)
	r.Post("/outbox/{id}/requeue", h.HandleRequeue)
}
