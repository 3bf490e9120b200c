// Package storage provides the durable key-value backends that mirror the
// in-memory lab collections and sessions. Every backend stores opaque,
// already-serialized records under string keys.
package storage

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrNotFound is returned by Get when no record exists under the key.
	ErrNotFound = errors.New("storage: record not found")

	// ErrCorrupt wraps decode failures of a stored record.
	ErrCorrupt = errors.New("storage: corrupt record")
)

// Backend is a durable key-value store of named records.
type Backend interface {
	// Get returns the record stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// PutAll overwrites every given record in a single atomic write.
	PutAll(ctx context.Context, records map[string][]byte) error
	// Delete removes the given keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// sortedKeys keeps multi-record writes in a stable order so that backends
// acquire row locks consistently.
func sortedKeys(records map[string][]byte) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
