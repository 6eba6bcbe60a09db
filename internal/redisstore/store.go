// Package redisstore holds the shared state of the request pipeline: fixed
// window counters and session documents.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "session:"

// incrWithExpiry increments KEYS[1] and sets its expiry on the first
// increment only, in one atomic step.
var incrWithExpiry = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// Store wraps a Redis client.
type Store struct {
	client *redis.Client
}

// New connects to redisURL and verifies the connection.
func New(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a store from an existing client.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Incr bumps the counter at key and returns the new value. The key expires
// ttl after it was created; later increments leave the expiry alone.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	count, err := incrWithExpiry.Run(ctx, s.client, []string{key}, secs).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return count, nil
}

// LoadSession returns the stored session data, or an empty map when the
// session does not exist.
func (s *Store) LoadSession(ctx context.Context, id string) (map[string]any, error) {
	raw, err := s.client.Get(ctx, sessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return data, nil
}

// SaveSession writes the session data with the given lifetime.
func (s *Store) SaveSession(ctx context.Context, id string, data map[string]any, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionPrefix+id, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
