// Package cache provides the time-boxed key/value store that holds pending
// authorization state and grant bindings. Entries expire after their TTL
// whether or not they were read; the TTL is hard, not sliding.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound is returned for absent and expired keys alike.
var ErrNotFound = errors.New("cache entry not found")

// Store is a TTL key/value map. Implementations must be safe for concurrent
// use; reads and writes on the same key are serialized so a Get never observes
// a half-written value.
type Store interface {
	// Put stores value under key for ttl.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the in-process Store used by default.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	logger  *zap.Logger
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a MemoryStore and starts its expiry janitor.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		logger:  logger.Named("memory_cache"),
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(value))
	copy(buf, value)
	s.entries[key] = memoryEntry{value: buf, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	// Callers get their own copy so they cannot mutate the stored entry.
	buf := make([]byte, len(entry.value))
	copy(buf, entry.value)
	return buf, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	now := time.Now()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			count++
		}
	}
	if count > 0 {
		s.logger.Debug("Swept expired cache entries", zap.Int("count", count))
	}
}

// RedisStore stores entries in Redis for horizontal scaling. Redis TTLs handle
// expiry.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// RedisConfig configures a Redis cache store.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStore creates a RedisStore and verifies the connection.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "oid4vc:session:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: prefix,
		logger:    logger.Named("redis_cache"),
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.keyPrefix+key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.keyPrefix+key).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
