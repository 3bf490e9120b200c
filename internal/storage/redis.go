package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each record as a Redis string under prefix+key.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a Redis-backed store.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if client == nil {
		panic("storage: redis client required")
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(name string) string {
	return r.prefix + name
}

// Get retrieves a record, mapping redis.Nil to ErrNotFound.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: redis get %s: %w", key, err)
	}
	return data, nil
}

// PutAll writes all records inside MULTI/EXEC.
func (r *RedisBackend) PutAll(ctx context.Context, records map[string][]byte) error {
	if len(records) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range sortedKeys(records) {
			pipe.Set(ctx, r.key(k), records[k], 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: redis put: %w", err)
	}
	return nil
}

// Delete removes keys.
func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("storage: redis delete: %w", err)
	}
	return nil
}
