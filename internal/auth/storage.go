package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage holds serialized sessions under a durable key.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisStorage keeps sessions in Redis with an expiry.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage constructs a RedisStorage. Keys are stored as prefix+key.
func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "crm221:session:"
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (s *RedisStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("auth: redis load: %w", err)
	}
	return data, nil
}

func (s *RedisStorage) Save(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("auth: redis save: %w", err)
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: redis delete: %w", err)
	}
	return nil
}

type memoryItem struct {
	payload []byte
	expires time.Time
}

// MemoryStorage keeps sessions in process memory.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStorage constructs an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]memoryItem), now: time.Now}
}

func (s *MemoryStorage) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		return nil, ErrNoSession
	}
	if !item.expires.IsZero() && !s.now().Before(item.expires) {
		delete(s.items, key)
		return nil, ErrNoSession
	}
	return append([]byte(nil), item.payload...), nil
}

func (s *MemoryStorage) Save(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := memoryItem{payload: append([]byte(nil), payload...)}
	if ttl > 0 {
		item.expires = s.now().Add(ttl)
	}
	s.items[key] = item
	return nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

var (
	_ Storage = (*RedisStorage)(nil)
	_ Storage = (*MemoryStorage)(nil)
)
