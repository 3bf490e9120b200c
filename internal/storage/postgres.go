package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxDB abstracts the pgx pool so the backend can run against pgxmock.
type PgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend stores records in the lab_records table created by
// cmd/migrate.
type PostgresBackend struct {
	db PgxDB
}

// NewPostgresBackend wraps a pgx pool (or compatible mock).
func NewPostgresBackend(db PgxDB) *PostgresBackend {
	if db == nil {
		panic("storage: pgx pool required")
	}
	return &PostgresBackend{db: db}
}

// Get returns the payload stored under key.
func (p *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := p.db.QueryRow(ctx, `SELECT payload FROM lab_records WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: postgres get %s: %w", key, err)
	}
	return payload, nil
}

// PutAll upserts every record in one transaction.
func (p *PostgresBackend) PutAll(ctx context.Context, records map[string][]byte) (retErr error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: postgres begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	for _, k := range sortedKeys(records) {
		if _, err := tx.Exec(ctx, `
			INSERT INTO lab_records (key, payload, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
		`, k, records[k]); err != nil {
			return fmt.Errorf("storage: postgres upsert %s: %w", k, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: postgres commit: %w", err)
	}
	return nil
}

// Delete removes keys.
func (p *PostgresBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := p.db.Exec(ctx, `DELETE FROM lab_records WHERE key = ANY($1)`, keys); err != nil {
		return fmt.Errorf("storage: postgres delete: %w", err)
	}
	return nil
}
