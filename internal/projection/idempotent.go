// Package projection holds the contract for consumers that maintain read
// models from envelopes.
//
// Delivery is at least once, so every consumer must tolerate seeing the same
// envelope again. Idempotent gives any handler that property by remembering
// which envelope IDs a named consumer has already applied.
package projection

import (
	"context"
	"fmt"

	"github.com/AI-Fresh-Docs/RusTokio/internal/dispatcher"
	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
)

// ProcessedStore records which envelopes a consumer has applied.
type ProcessedStore interface {
	IsProcessed(ctx context.Context, consumer string, id domain.EventID) (bool, error)
	MarkProcessed(ctx context.Context, consumer string, id domain.EventID) error
}

// Idempotent wraps next so an envelope ID already applied by the consumer
// called name is skipped. The marker is written only after next succeeds, so
// a failed or interrupted call is retried in full.
func Idempotent(name string, store ProcessedStore, next dispatcher.HandlerFunc) dispatcher.HandlerFunc {
	return func(ctx context.Context, env events.Envelope) error {
		done, err := store.IsProcessed(ctx, name, env.ID())
		if err != nil {
			return fmt.Errorf("check processed %s: %w", env.ID(), err)
		}
		if done {
			return nil
		}
		if err := next(ctx, env); err != nil {
			return err
		}
		if err := store.MarkProcessed(ctx, name, env.ID()); err != nil {
			return fmt.Errorf("mark processed %s: %w", env.ID(), err)
		}
		return nil
	}
}
