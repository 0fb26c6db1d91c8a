package admin

import (
	"log/slog"
	"net/http"

	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/httputil"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/middleware/auth"
	request "github.com/AI-Fresh-Docs/RusTokio/pkg/platform/middleware/request"
)

// RoleAdmin is the claim value that unlocks the admin surface.
const RoleAdmin = "admin"

// RequireRole lets the request through only when the authenticated claims
// carry role. It must run after auth.RequireAuth.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claims := auth.GetClaims(ctx)
			if claims == nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !claims.HasRole(role) {
				logger.WarnContext(ctx, "admin role missing",
					"actor_id", claims.ActorID.String(),
					"required_role", role,
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, role+" role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
