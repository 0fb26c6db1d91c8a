package jwttoken

import (
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	authmw "github.com/AI-Fresh-Docs/RusTokio/pkg/platform/middleware/auth"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/strings"
)

// ToMiddlewareClaims maps token claims onto the request-scoped form. Roles are
// trimmed, lowercased and deduplicated.
func ToMiddlewareClaims(claims *Claims) (*authmw.JWTClaims, error) {
	actorID, err := domain.ParseActorID(claims.Subject)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{
		ActorID: actorID,
		Roles:   strings.DedupeAndTrimLower(claims.Roles),
		JTI:     claims.ID,
	}, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
