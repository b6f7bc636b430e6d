package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "session:revoked:"

// Revocations remembers ended sessions until their tokens expire.
type Revocations interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	Revoked(ctx context.Context, id string) (bool, error)
}

// RedisRevocations stores revoked token ids in Redis with a TTL matching
// the token lifetime.
type RedisRevocations struct {
	cache *redis.Client
	now   func() time.Time
}

// NewRedisRevocations builds a Redis backed revocation list.
func NewRedisRevocations(cache *redis.Client) *RedisRevocations {
	return &RedisRevocations{cache: cache, now: time.Now}
}

func (r *RedisRevocations) Revoke(ctx context.Context, id string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.cache.Set(ctx, revokedPrefix+id, "1", ttl).Err()
}

func (r *RedisRevocations) Revoked(ctx context.Context, id string) (bool, error) {
	n, err := r.cache.Exists(ctx, revokedPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type memoryRevocations struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewMemoryRevocations keeps revocations in process memory.
func NewMemoryRevocations() Revocations {
	return &memoryRevocations{until: make(map[string]time.Time), now: time.Now}
}

func (m *memoryRevocations) Revoke(_ context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.until {
		if !exp.After(now) {
			delete(m.until, k)
		}
	}
	if until.After(now) {
		m.until[id] = until
	}
	return nil
}

func (m *memoryRevocations) Revoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.until[id]
	return ok && exp.After(m.now()), nil
}
