package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/soundgraph/internal/domain"
	"github.com/davidbz/soundgraph/internal/observability"
)

// Config holds Redis connection settings.
type Config struct {
	Addr      string `env:"REDIS_ADDR"       envDefault:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB"         envDefault:"0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"clustering:"`
}

// Store implements domain.CacheStore on Redis strings.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// NewClient creates a Redis client and checks connectivity.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// NewStore creates a new Redis cache store adapter.
func NewStore(client *redis.Client, keyPrefix string) *Store {
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the value stored under key or domain.ErrCacheMiss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		observability.FromContext(ctx).Error("redis get failed",
			observability.String("key", key),
			observability.Error(err))
		return nil, fmt.Errorf("redis get: %w", err)
	}

	return data, nil
}

// Set stores value under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	logger := observability.FromContext(ctx)
	logger.Debug("redis set",
		observability.String("key", key),
		observability.Int("data_size", len(value)),
		observability.Duration("ttl", ttl))

	if err := s.client.Set(ctx, s.keyPrefix+key, value, ttl).Err(); err != nil {
		logger.Error("redis set failed", observability.Error(err))
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// SetNX stores value only when key does not exist, atomically on the server.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, value, ttl).Result()
	if err != nil {
		observability.FromContext(ctx).Error("redis setnx failed",
			observability.String("key", key),
			observability.Error(err))
		return false, fmt.Errorf("redis setnx: %w", err)
	}

	return ok, nil
}
