package outbox

import (
	"context"
	"time"

	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/tx"
)

// Inserter stages a record through the caller's transaction.
type Inserter interface {
	Insert(ctx context.Context, exec tx.Execer, rec Record) error
}

// Store is the relay's view of the outbox table.
type Store interface {
	Inserter

	// Claim locks up to limit due Pending records, oldest first per tenant.
	// A tenant whose oldest Pending record is not yet due is skipped so its
	// later records cannot overtake it. The locks are held until the batch
	// is committed or rolled back.
	Claim(ctx context.Context, now time.Time, limit int) (Batch, error)

	// Requeue moves a Failed record back to Pending with a fresh attempt
	// budget. Returns sentinel.ErrNotFound when no Failed record has id.
	Requeue(ctx context.Context, id domain.EventID, now time.Time) error

	ListFailed(ctx context.Context, limit int) ([]Record, error)
	Stats(ctx context.Context) (Stats, error)

	// Prune deletes Delivered records delivered before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Batch is a set of claimed records and the transaction holding their locks.
// Implementations are safe for concurrent use.
type Batch interface {
	Records() []Record
	MarkDelivered(ctx context.Context, id domain.EventID, at time.Time) error
	Reschedule(ctx context.Context, id domain.EventID, attempts int, availableAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id domain.EventID, attempts int, lastErr string) error
	Commit() error
	Rollback() error
}
