// Package memory provides a process-local cache store for single-instance deployments.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/davidbz/soundgraph/internal/domain"
)

const (
	defaultNumCounters = 1e6 // 1M counters for admission policy
	defaultMaxCost     = 1e8 // 100MB max cost
	defaultBufferItems = 64  // Buffer items for async writes
)

// ErrRejected indicates the cache admission policy dropped a write.
var ErrRejected = errors.New("cache write rejected")

// Config sizes the in-memory store.
type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// Store implements domain.CacheStore on ristretto. Writes are serialized so SetNX is atomic
// within the process.
type Store struct {
	cache *ristretto.Cache
	mu    sync.Mutex
}

// NewStore creates an in-memory cache store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = defaultNumCounters
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = defaultMaxCost
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = defaultBufferItems
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &Store{cache: cache}, nil
}

// Get returns the value stored under key or domain.ErrCacheMiss. Expired entries are misses.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	value, found := s.cache.Get(key)
	if !found {
		return nil, domain.ErrCacheMiss
	}

	data, ok := value.([]byte)
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), data...), nil
}

// Set stores value under key with the given TTL.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.set(key, value, ttl)
}

// SetNX stores value only when key is absent or expired.
func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.cache.Get(key); found {
		return false, nil
	}
	if err := s.set(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the cache's background goroutines.
func (s *Store) Close() {
	s.cache.Close()
}

func (s *Store) set(key string, value []byte, ttl time.Duration) error {
	data := append([]byte(nil), value...)
	if !s.cache.SetWithTTL(key, data, int64(len(data)), ttl) {
		return fmt.Errorf("%w: %s", ErrRejected, key)
	}
	// Make the write visible to the next Get.
	s.cache.Wait()

	// TinyLFU admission may still drop an accepted write.
	stored, found := s.cache.Get(key)
	if current, ok := stored.([]byte); !found || !ok || !bytes.Equal(current, data) {
		return fmt.Errorf("%w: %s", ErrRejected, key)
	}
	return nil
}
