package auth

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/httputil"
	request "github.com/AI-Fresh-Docs/RusTokio/pkg/platform/middleware/request"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	ActorID domain.ActorID
	Roles   []string
	JTI     string
}

func (c *JWTClaims) HasRole(role string) bool {
	return c != nil && slices.Contains(c.Roles, role)
}

type contextKeyClaims struct{}

// ContextKeyClaims is exported for tests that build contexts by hand.
var ContextKeyClaims = contextKeyClaims{}

// GetClaims retrieves the validated claims from the context.
func GetClaims(ctx context.Context) *JWTClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*JWTClaims)
	return claims
}

func WithClaims(ctx context.Context, claims *JWTClaims) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClaims, claims)
	return requestcontext.WithActorID(ctx, claims.ActorID)
}

// RequireAuth validates the bearer token and records the actor in the
// context, so events written while serving the request carry it.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}
