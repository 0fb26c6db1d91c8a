package modules

import (
	"context"
	"time"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
)

// Store persists explicit per-tenant enablement. A module a tenant never
// toggled has no row and falls back to its descriptor default.
type Store interface {
	// States returns the stored flag of every module the tenant toggled.
	States(ctx context.Context, tenantID domain.TenantID) (map[string]bool, error)
	SetEnabled(ctx context.Context, tenantID domain.TenantID, slug string, enabled bool, at time.Time) error
}

// StoreTx runs fn in one transaction. Writes made through the store handed to
// fn, and any outbox rows staged with the context handed to fn, commit or roll
// back together.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// EventPublisher stages an event in the transaction carried by ctx. The
// outbox writer satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, tenantID domain.TenantID, actorID *domain.ActorID, event events.DomainEvent) (domain.EventID, error)
}
