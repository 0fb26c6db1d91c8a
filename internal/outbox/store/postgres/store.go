// Package postgres implements the outbox store on Postgres. Claimed rows are
// locked with FOR UPDATE SKIP LOCKED, so several relays can share one table
// without delivering the same row twice concurrently.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/tx"
)

const columns = `id, tenant_id, event_type, payload, status, attempt_count, last_error, available_at, created_at, delivered_at`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, exec tx.Execer, rec outbox.Record) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO outbox_events (id, tenant_id, event_type, payload, status, attempt_count, available_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(rec.ID),
		uuid.UUID(rec.TenantID),
		rec.EventType,
		string(rec.Payload),
		string(rec.Status),
		rec.AttemptCount,
		rec.AvailableAt,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

// Claim opens a transaction and locks due rows. A row is due when it is
// pending, available, and no older pending row of its tenant is still
// waiting out a backoff.
func (s *Store) Claim(ctx context.Context, now time.Time, limit int) (outbox.Batch, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}

	rows, err := sqlTx.QueryContext(ctx, `
		SELECT `+columns+`
		FROM outbox_events o
		WHERE o.status = 'pending'
		  AND o.available_at <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM outbox_events e
			WHERE e.tenant_id = o.tenant_id
			  AND e.status = 'pending'
			  AND e.available_at > $1
			  AND (e.created_at, e.seq) < (o.created_at, o.seq)
		  )
		ORDER BY o.created_at, o.seq
		LIMIT $2
		FOR UPDATE OF o SKIP LOCKED`,
		now, limit,
	)
	if err != nil {
		_ = sqlTx.Rollback()
		return nil, fmt.Errorf("select due outbox records: %w", err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		_ = sqlTx.Rollback()
		return nil, err
	}
	return &batch{tx: sqlTx, records: recs}, nil
}

func (s *Store) Requeue(ctx context.Context, id domain.EventID, now time.Time) error {
	res, err := tx.Or(ctx, s.db).ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'pending', attempt_count = 0, available_at = $2
		WHERE id = $1 AND status = 'failed'`,
		uuid.UUID(id), now,
	)
	if err != nil {
		return fmt.Errorf("requeue outbox record: %w", err)
	}
	return expectOne(res, "requeue outbox record")
}

func (s *Store) ListFailed(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM outbox_events
		WHERE status = 'failed'
		ORDER BY created_at, seq
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed outbox records: %w", err)
	}
	return scanRecords(rows)
}

func (s *Store) Stats(ctx context.Context) (outbox.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox_events GROUP BY status`)
	if err != nil {
		return outbox.Stats{}, fmt.Errorf("count outbox records: %w", err)
	}
	defer rows.Close()

	var stats outbox.Stats
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return outbox.Stats{}, fmt.Errorf("scan outbox stats: %w", err)
		}
		switch outbox.Status(status) {
		case outbox.StatusPending:
			stats.Pending = n
		case outbox.StatusDelivered:
			stats.Delivered = n
		case outbox.StatusFailed:
			stats.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return outbox.Stats{}, fmt.Errorf("iterate outbox stats: %w", err)
	}
	return stats, nil
}

func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM outbox_events
		WHERE status = 'delivered' AND delivered_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune outbox records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune outbox records: %w", err)
	}
	return n, nil
}

// batch serializes statements on its transaction; relay goroutines share it.
type batch struct {
	mu      sync.Mutex
	tx      *sql.Tx
	records []outbox.Record
}

func (b *batch) Records() []outbox.Record {
	return b.records
}

func (b *batch) MarkDelivered(ctx context.Context, id domain.EventID, at time.Time) error {
	return b.exec(ctx, "mark delivered", `
		UPDATE outbox_events
		SET status = 'delivered', delivered_at = $2
		WHERE id = $1 AND status = 'pending'`,
		uuid.UUID(id), at,
	)
}

func (b *batch) Reschedule(ctx context.Context, id domain.EventID, attempts int, availableAt time.Time, lastErr string) error {
	return b.exec(ctx, "reschedule", `
		UPDATE outbox_events
		SET attempt_count = $2, available_at = $3, last_error = $4
		WHERE id = $1 AND status = 'pending'`,
		uuid.UUID(id), attempts, availableAt, lastErr,
	)
}

func (b *batch) MarkFailed(ctx context.Context, id domain.EventID, attempts int, lastErr string) error {
	return b.exec(ctx, "mark failed", `
		UPDATE outbox_events
		SET status = 'failed', attempt_count = $2, last_error = $3
		WHERE id = $1 AND status = 'pending'`,
		uuid.UUID(id), attempts, lastErr,
	)
}

func (b *batch) exec(ctx context.Context, op, query string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectOne(res, op)
}

func (b *batch) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tx.Commit()
}

func (b *batch) Rollback() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tx.Rollback()
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]outbox.Record, error) {
	defer rows.Close()
	var out []outbox.Record
	for rows.Next() {
		var (
			rec         outbox.Record
			id, tenant  uuid.UUID
			status      string
			lastError   sql.NullString
			deliveredAt sql.NullTime
		)
		if err := rows.Scan(&id, &tenant, &rec.EventType, &rec.Payload, &status, &rec.AttemptCount,
			&lastError, &rec.AvailableAt, &rec.CreatedAt, &deliveredAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		rec.ID = domain.EventID(id)
		rec.TenantID = domain.TenantID(tenant)
		rec.Status = outbox.Status(status)
		if lastError.Valid {
			rec.LastError = &lastError.String
		}
		if deliveredAt.Valid {
			t := deliveredAt.Time
			rec.DeliveredAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox records: %w", err)
	}
	return out, nil
}
