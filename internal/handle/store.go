package handle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BlobStore holds the bytes behind live handles.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	Put(ctx context.Context, id uuid.UUID, data []byte, ttl time.Duration) error
	Get(ctx context.Context, id uuid.UUID) ([]byte, bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
}

// BlobKey is the storage key for a handle's bytes.
func BlobKey(id uuid.UUID) string {
	return fmt.Sprintf("segmenter:handle:%s", id)
}

// MemoryStore keeps blobs in process memory. TTLs are ignored: blobs live
// until deleted.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[uuid.UUID][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[uuid.UUID][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, id uuid.UUID, data []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = data
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[id]
	return data, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// RedisStore keeps blobs in Redis so they survive only as long as their TTL
// if the process dies without releasing them.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new RedisStore from a Redis URL.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Put(ctx context.Context, id uuid.UUID, data []byte, ttl time.Duration) error {
	return s.client.Set(ctx, BlobKey(id), data, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, BlobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.client.Del(ctx, BlobKey(id)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var (
	_ BlobStore = (*MemoryStore)(nil)
	_ BlobStore = (*RedisStore)(nil)
)
