// Package sqlite implements the outbox store on an embedded SQLite database.
// Every transaction begins IMMEDIATE, so a claim holds the database write
// lock until its batch commits.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/AI-Fresh-Docs/RusTokio/internal/outbox"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/sentinel"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/tx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const columns = `id, tenant_id, event_type, payload, status, attempt_count, last_error, available_at, created_at, delivered_at`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// DB exposes the handle so callers can open transactions that span domain
// writes and outbox inserts.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, exec tx.Execer, rec outbox.Record) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO outbox_events (id, tenant_id, event_type, payload, status, attempt_count, available_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(),
		rec.TenantID.String(),
		rec.EventType,
		string(rec.Payload),
		string(rec.Status),
		rec.AttemptCount,
		toMicros(rec.AvailableAt),
		toMicros(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

func (s *Store) Claim(ctx context.Context, now time.Time, limit int) (outbox.Batch, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	nowMicros := toMicros(now)
	rows, err := sqlTx.QueryContext(ctx, `
		SELECT `+columns+`
		FROM outbox_events o
		WHERE o.status = 'pending'
		  AND o.available_at <= ?
		  AND NOT EXISTS (
			SELECT 1 FROM outbox_events e
			WHERE e.tenant_id = o.tenant_id
			  AND e.status = 'pending'
			  AND e.available_at > ?
			  AND (e.created_at, e.seq) < (o.created_at, o.seq)
		  )
		ORDER BY o.created_at, o.seq
		LIMIT ?`,
		nowMicros, nowMicros, limit,
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
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = 'pending', attempt_count = 0, available_at = ?
		WHERE id = ? AND status = 'failed'`,
		toMicros(now), id.String(),
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
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed outbox records: %w", err)
	}
	return scanRecords(rows)
}

func (s *Store) Stats(ctx context.Context) (outbox.Stats, error) {
	var stats outbox.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'delivered' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM outbox_events`).Scan(&stats.Pending, &stats.Delivered, &stats.Failed)
	if err != nil {
		return outbox.Stats{}, fmt.Errorf("count outbox records: %w", err)
	}
	return stats, nil
}

func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM outbox_events
		WHERE status = 'delivered' AND delivered_at < ?`, toMicros(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune outbox records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune outbox records: %w", err)
	}
	return n, nil
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, id domain.EventID) (outbox.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM outbox_events WHERE id = ?`, id.String())
	if err != nil {
		return outbox.Record{}, fmt.Errorf("get outbox record: %w", err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return outbox.Record{}, err
	}
	if len(recs) == 0 {
		return outbox.Record{}, sentinel.ErrNotFound
	}
	return recs[0], nil
}

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
		SET status = 'delivered', delivered_at = ?
		WHERE id = ? AND status = 'pending'`,
		toMicros(at), id.String(),
	)
}

func (b *batch) Reschedule(ctx context.Context, id domain.EventID, attempts int, availableAt time.Time, lastErr string) error {
	return b.exec(ctx, "reschedule", `
		UPDATE outbox_events
		SET attempt_count = ?, available_at = ?, last_error = ?
		WHERE id = ? AND status = 'pending'`,
		attempts, toMicros(availableAt), lastErr, id.String(),
	)
}

func (b *batch) MarkFailed(ctx context.Context, id domain.EventID, attempts int, lastErr string) error {
	return b.exec(ctx, "mark failed", `
		UPDATE outbox_events
		SET status = 'failed', attempt_count = ?, last_error = ?
		WHERE id = ? AND status = 'pending'`,
		attempts, lastErr, id.String(),
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
			rec                    outbox.Record
			id, tenant             string
			payload, status        string
			lastError              sql.NullString
			availableAt, createdAt int64
			deliveredAt            sql.NullInt64
		)
		if err := rows.Scan(&id, &tenant, &rec.EventType, &payload, &status, &rec.AttemptCount,
			&lastError, &availableAt, &createdAt, &deliveredAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		eventID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse outbox record id: %w", err)
		}
		tenantID, err := uuid.Parse(tenant)
		if err != nil {
			return nil, fmt.Errorf("parse outbox tenant id: %w", err)
		}
		rec.ID = domain.EventID(eventID)
		rec.TenantID = domain.TenantID(tenantID)
		rec.Payload = []byte(payload)
		rec.Status = outbox.Status(status)
		rec.AvailableAt = fromMicros(availableAt)
		rec.CreatedAt = fromMicros(createdAt)
		if lastError.Valid {
			rec.LastError = &lastError.String
		}
		if deliveredAt.Valid {
			t := fromMicros(deliveredAt.Int64)
			rec.DeliveredAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox records: %w", err)
	}
	return out, nil
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
