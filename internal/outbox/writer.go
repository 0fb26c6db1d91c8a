package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/AI-Fresh-Docs/RusTokio/internal/events"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/tx"
)

// Waker is notified after an event is staged so the relay can poll early.
type Waker interface {
	Wake()
}

// Writer stages events in the outbox. It never publishes directly: an event
// becomes visible to the relay only when the caller's transaction commits.
type Writer struct {
	store  Inserter
	waker  Waker
	logger *slog.Logger
	now    func() time.Time
}

type WriterOption func(*Writer)

func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithWaker nudges the relay after each staged event.
func WithWaker(waker Waker) WriterOption {
	return func(w *Writer) {
		w.waker = waker
	}
}

func NewWriter(store Inserter, opts ...WriterOption) *Writer {
	w := &Writer{
		store:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// PublishInTx validates event, wraps it in an envelope and inserts a Pending
// record through exec. Nothing is written when validation fails.
func (w *Writer) PublishInTx(ctx context.Context, exec tx.Execer, tenantID domain.TenantID, actorID *domain.ActorID, event events.DomainEvent) (domain.EventID, error) {
	if exec == nil {
		return domain.EventID{}, sentinel.ErrNoTransaction
	}
	env, err := events.NewEnvelope(tenantID, actorID, event)
	if err != nil {
		return domain.EventID{}, err
	}
	rec, err := NewRecord(env, w.now())
	if err != nil {
		return domain.EventID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode event")
	}
	if err := w.store.Insert(ctx, exec, rec); err != nil {
		return domain.EventID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to stage event")
	}

	w.logger.DebugContext(ctx, "event staged",
		"event_id", rec.ID.String(),
		"event_type", rec.EventType,
		"tenant_id", tenantID.String(),
	)
	if w.waker != nil {
		w.waker.Wake()
	}
	return rec.ID, nil
}

// Publish is PublishInTx using the transaction carried by ctx. It fails with
// sentinel.ErrNoTransaction when ctx carries none.
func (w *Writer) Publish(ctx context.Context, tenantID domain.TenantID, actorID *domain.ActorID, event events.DomainEvent) (domain.EventID, error) {
	sqlTx, ok := tx.From(ctx)
	if !ok {
		return domain.EventID{}, sentinel.ErrNoTransaction
	}
	return w.PublishInTx(ctx, sqlTx, tenantID, actorID, event)
}
