package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps draft blobs in Redis under a namespace prefix
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisStore wraps an existing client. A zero ttl keeps drafts until cleared.
func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, namespace: namespace, ttl: ttl}
}

// DialRedisStore parses url, connects, and verifies the server responds
func DialRedisStore(ctx context.Context, url, namespace string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisStore(client, namespace, ttl), nil
}

func (s *RedisStore) key(key string) string {
	return s.namespace + key
}

// Get reads the value for key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return data, nil
}

// Set writes the value for key
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set draft: %w", err)
	}
	return nil
}

// Delete removes key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// Keys lists stored keys without the namespace
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.namespace+KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.namespace))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan drafts: %w", err)
	}
	return keys, nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
