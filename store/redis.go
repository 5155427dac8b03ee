package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis-backed content store.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RedisContentStore is a Redis-based ContentStore. Suitable for
// distributed deployments where several harness processes share the
// offloaded history.
type RedisContentStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisContentStore connects to Redis and verifies the connection.
func NewRedisContentStore(cfg RedisConfig) (*RedisContentStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "agentcore:"
	}
	return &RedisContentStore{client: client, keyPrefix: keyPrefix + "content:"}, nil
}

// NewRedisContentStoreWithClient wraps an existing client (tests).
func NewRedisContentStoreWithClient(client *redis.Client, keyPrefix string) *RedisContentStore {
	if keyPrefix == "" {
		keyPrefix = "agentcore:"
	}
	return &RedisContentStore{client: client, keyPrefix: keyPrefix + "content:"}
}

// Close closes the underlying client.
func (s *RedisContentStore) Close() error {
	return s.client.Close()
}

func (s *RedisContentStore) key(key string) string {
	return s.keyPrefix + SanitizeKey(key)
}

func (s *RedisContentStore) Append(ctx context.Context, key, content string) (string, error) {
	k := s.key(key)
	if err := s.client.Append(ctx, k, content).Err(); err != nil {
		return "", fmt.Errorf("redis append: %w", err)
	}
	return "redis://" + k, nil
}

func (s *RedisContentStore) Write(ctx context.Context, key, content string) (string, error) {
	k := s.key(key)
	if err := s.client.Set(ctx, k, content, 0).Err(); err != nil {
		return "", fmt.Errorf("redis set: %w", err)
	}
	return "redis://" + k, nil
}

func (s *RedisContentStore) Read(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}
