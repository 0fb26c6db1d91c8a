package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AI-Fresh-Docs/RusTokio/internal/modules"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/circuit"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/httputil"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/requestcontext"
)

// ToggleRequest is the body of PUT /admin/tenants/{tenantID}/modules/{slug}.
type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (r *ToggleRequest) Validate() error {
	if r == nil || r.Enabled == nil {
		return dErrors.New(dErrors.CodeValidation, "enabled is required")
	}
	return nil
}

// ToggleErrorResponse carries the refusal kind and the module it points at.
type ToggleErrorResponse struct {
	Error string `json:"error"`
	Slug  string `json:"slug"`
}

type EnabledModulesResponse struct {
	TenantID string   `json:"tenant_id"`
	Enabled  []string `json:"enabled"`
}

// HealthResponse is the body of GET /health/modules.
type HealthResponse struct {
	Status   modules.HealthStatus   `json:"status"`
	Modules  []modules.ModuleHealth `json:"modules"`
	Outbox   *OutboxHealth          `json:"outbox,omitempty"`
	Breakers []circuit.Snapshot     `json:"breakers"`
}

type OutboxHealth struct {
	Pending int64 `json:"pending"`
	Failed  int64 `json:"failed"`
}

func parseTenant(value string) (domain.TenantID, error) {
	id, err := domain.ParseTenantID(value)
	if err != nil {
		return domain.TenantID{}, dErrors.New(dErrors.CodeBadRequest, "invalid tenant_id")
	}
	return id, nil
}

// HandleToggleModule handles PUT /admin/tenants/{tenantID}/modules/{slug}.
func (h *Handler) HandleToggleModule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tenantID, err := parseTenant(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	slug := chi.URLParam(r, "slug")

	req, ok := httputil.DecodeAndPrepare[ToggleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.modules.ToggleModule(ctx, tenantID, slug, *req.Enabled); err != nil {
		if te, ok := modules.AsToggleError(err); ok {
			h.logger.InfoContext(ctx, "module toggle refused",
				"request_id", requestID,
				"tenant_id", tenantID.String(),
				"module", slug,
				"reason", string(te.Kind),
				"related", te.Slug,
			)
			httputil.WriteJSON(w, httputil.StatusFor(te.Code()), ToggleErrorResponse{
				Error: string(te.Kind),
				Slug:  te.Slug,
			})
			return
		}
		h.logger.ErrorContext(ctx, "module toggle failed",
			"request_id", requestID,
			"tenant_id", tenantID.String(),
			"module", slug,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "module toggled",
		"request_id", requestID,
		"tenant_id", tenantID.String(),
		"module", slug,
		"enabled", *req.Enabled,
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleListModules handles GET /admin/tenants/{tenantID}/modules.
func (h *Handler) HandleListModules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := parseTenant(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	enabled, err := h.modules.EnabledModules(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list enabled modules",
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", tenantID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EnabledModulesResponse{
		TenantID: tenantID.String(),
		Enabled:  enabled,
	})
}

// HandleModuleHealth handles GET /health/modules?tenant_id=. An unhealthy
// aggregate answers 503 so load balancers can act on it.
func (h *Handler) HandleModuleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := parseTenant(r.URL.Query().Get("tenant_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	report, err := h.modules.Health(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "module health failed",
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", tenantID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := HealthResponse{
		Status:   report.Status,
		Modules:  report.Modules,
		Breakers: []circuit.Snapshot{},
	}
	if h.outbox != nil {
		if stats, err := h.outbox.Stats(ctx); err != nil {
			h.logger.WarnContext(ctx, "outbox stats unavailable", "error", err)
		} else {
			resp.Outbox = &OutboxHealth{Pending: stats.Pending, Failed: stats.Failed}
		}
	}
	if h.breakers != nil {
		resp.Breakers = h.breakers.Snapshots()
	}

	status := http.StatusOK
	if report.Status == modules.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}
