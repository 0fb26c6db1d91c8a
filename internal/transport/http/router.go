// Package httptransport exposes liveness, metrics, module health, and the
// admin surface for module toggles and the outbox.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/httputil"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/middleware/admin"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/middleware/auth"
	request "github.com/AI-Fresh-Docs/RusTokio/pkg/platform/middleware/request"
)

// NewRouter wires all endpoints. Everything under /admin requires a bearer
// token carrying the admin role.
func NewRouter(h *Handler, validator auth.JWTValidator, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Time)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/health/modules", h.HandleModuleHealth)

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAuth(validator, logger))
		r.Use(admin.RequireRole(admin.RoleAdmin, logger))
		h.RegisterAdmin(r)
	})
	return r
}
