package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS records (
	key TEXT PRIMARY KEY,
	payload BLOB NOT NULL
)`

// SQLiteBackend keeps every record as a row of a single table and writes
// multi-record updates in one transaction.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating when needed) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		path = "hmpv.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("storage: create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent flushes
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: create records table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// NewSQLiteBackendFromDB wraps an already opened database whose records
// table exists.
func NewSQLiteBackendFromDB(db *sql.DB) *SQLiteBackend {
	if db == nil {
		panic("storage: sql db required")
	}
	return &SQLiteBackend{db: db}
}

// Get returns the payload stored under key.
func (s *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM records WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: sqlite get %s: %w", key, err)
	}
	return payload, nil
}

// PutAll upserts every record inside one transaction.
func (s *SQLiteBackend) PutAll(ctx context.Context, records map[string][]byte) (retErr error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: sqlite begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, k := range sortedKeys(records) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (key, payload) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET payload = excluded.payload`,
			k, records[k],
		); err != nil {
			return fmt.Errorf("storage: sqlite upsert %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: sqlite commit: %w", err)
	}
	return nil
}

// Delete removes keys inside one transaction.
func (s *SQLiteBackend) Delete(ctx context.Context, keys ...string) (retErr error) {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: sqlite begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, k); err != nil {
			return fmt.Errorf("storage: sqlite delete %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: sqlite commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
