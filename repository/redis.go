package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements session.Store on Redis. Every write refreshes the
// key TTL so idle browser sessions expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client. A zero ttl keeps keys forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get implements session.Store.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.client == nil {
		return "", false, errRedisNotConfigured
	}
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set implements session.Store.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if s == nil || s.client == nil {
		return errRedisNotConfigured
	}
	return s.client.Set(ctx, key, value, s.ttl).Err()
}

// Delete implements session.Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return errRedisNotConfigured
	}
	return s.client.Del(ctx, key).Err()
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errRedisNotConfigured
	}
	return s.client.Ping(ctx).Err()
}

var errRedisNotConfigured = errors.New("redis client not configured")
