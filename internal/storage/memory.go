package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps records in process memory. It is the default backend
// for development and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string][]byte)}
}

// Get returns a copy of the stored record.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// PutAll stores copies of every record under one lock.
func (m *MemoryBackend) PutAll(_ context.Context, records map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range records {
		m.records[k] = append([]byte(nil), v...)
	}
	return nil
}

// Delete removes keys.
func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.records, k)
	}
	return nil
}

// Len reports the number of stored records.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
