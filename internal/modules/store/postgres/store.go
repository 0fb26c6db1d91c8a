// Package postgres persists module enablement in the tenant_modules table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Fresh-Docs/RusTokio/internal/modules"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/domain"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/platform/tx"
)

// Store is a Postgres modules.Store. Every query runs in the context
// transaction when there is one.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) States(ctx context.Context, tenantID domain.TenantID) (map[string]bool, error) {
	rows, err := tx.Or(ctx, s.db).QueryContext(ctx,
		`SELECT slug, enabled FROM tenant_modules WHERE tenant_id = $1`,
		uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query tenant modules: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			slug    string
			enabled bool
		)
		if err := rows.Scan(&slug, &enabled); err != nil {
			return nil, fmt.Errorf("scan tenant module: %w", err)
		}
		out[slug] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant modules: %w", err)
	}
	return out, nil
}

func (s *Store) SetEnabled(ctx context.Context, tenantID domain.TenantID, slug string, enabled bool, at time.Time) error {
	_, err := tx.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO tenant_modules (tenant_id, slug, enabled, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, slug)
		DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		uuid.UUID(tenantID), slug, enabled, at.UTC())
	if err != nil {
		return fmt.Errorf("upsert tenant module: %w", err)
	}
	return nil
}

// Tx is a modules.StoreTx over one database transaction. The transaction is
// exposed through the context, so an outbox writer taking it from there
// stages its row in the same commit.
type Tx struct {
	runner *tx.Runner
	store  *Store
}

func NewTx(db *sql.DB) *Tx {
	return &Tx{runner: tx.NewRunner(db), store: New(db)}
}

func (t *Tx) RunInTx(ctx context.Context, fn func(ctx context.Context, store modules.Store) error) error {
	return t.runner.RunInTx(ctx, func(ctx context.Context) error {
		return fn(ctx, t.store)
	})
}
