package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// redisKey is the hash holding all plugin records, field per plugin id.
const redisKey = "animus:plugin_records"

// RedisStore persists plugin records in a Redis hash. Suited to hosts that
// already run Redis and want restarts to survive without local disk.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client. The caller keeps
// ownership of the client's lifetime.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save upserts a record.
func (s *RedisStore) Save(ctx context.Context, id string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %q: %w", id, err)
	}

	if err := s.client.HSet(ctx, redisKey, id, data).Err(); err != nil {
		return fmt.Errorf("failed to save record %q: %w", id, err)
	}
	return nil
}

// Load returns all persisted records.
func (s *RedisStore) Load(ctx context.Context) (map[string]Record, error) {
	fields, err := s.client.HGetAll(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	out := make(map[string]Record, len(fields))
	for id, data := range fields {
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %q: %w", id, err)
		}
		out[id] = rec
	}
	return out, nil
}

// Delete removes a record.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, redisKey, id).Err(); err != nil {
		return fmt.Errorf("failed to delete record %q: %w", id, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
