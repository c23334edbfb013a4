package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "conversation:"

// RedisStore persists conversation state as one JSON blob per
// conversation key, refreshing the TTL on every save.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the given redis URL and verifies the
// connection with a ping.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) key(conversationID string) string {
	return redisKeyPrefix + conversationID
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, conversationID string) (json.RawMessage, error) {
	data, err := s.client.Get(ctx, s.key(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, conversationID string, blob json.RawMessage) error {
	if err := s.client.Set(ctx, s.key(conversationID), []byte(blob), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, s.key(conversationID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
