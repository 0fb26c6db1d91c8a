package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AI-Fresh-Docs/RusTokio/internal/projection"
	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/httputil"
)

type CatalogResponse struct {
	TenantID string             `json:"tenant_id"`
	Entries  []projection.Entry `json:"entries"`
}

// HandleCatalog handles GET /admin/tenants/{tenantID}/catalog?kind=.
// Without kind every indexed entity is returned.
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	tenantID, err := parseTenant(chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	kind := r.URL.Query().Get("kind")
	switch kind {
	case "", projection.KindNode, projection.KindProduct, projection.KindOrder, projection.KindTopic, projection.KindReply:
	default:
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown kind %q", kind))
		return
	}
	entries := h.catalog.List(tenantID, kind)
	if entries == nil {
		entries = []projection.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, CatalogResponse{TenantID: tenantID.String(), Entries: entries})
}
