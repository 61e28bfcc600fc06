package otp

import (
	"context"
	"sync"
	"time"

	"corebank/pkg/cache"
	"corebank/pkg/errors"
)

// RedisStore keeps challenges in redis so any API replica can verify them.
type RedisStore struct {
	cache *cache.RedisCache
}

func NewRedisStore(c *cache.RedisCache) *RedisStore {
	return &RedisStore{cache: c}
}

func challengeKey(id string) string { return "otp:challenge:" + id }
func failuresKey(id string) string  { return "otp:failures:" + id }

func (r *RedisStore) Save(ctx context.Context, c *Challenge, ttl time.Duration) error {
	return r.cache.Set(ctx, challengeKey(c.ID), c, ttl)
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Challenge, error) {
	var c Challenge
	if err := r.cache.Get(ctx, challengeKey(id), &c); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, errors.ErrOTPExpired
		}
		return nil, err
	}
	return &c, nil
}

func (r *RedisStore) RecordFailure(ctx context.Context, id string, ttl time.Duration) (int, error) {
	n, err := r.cache.Increment(ctx, failuresKey(id))
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		if err := r.cache.Expire(ctx, failuresKey(id), ttl); err != nil {
			return 0, err
		}
	}
	return int(n), nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.cache.Delete(ctx, failuresKey(id)); err != nil {
		return err
	}
	return r.cache.Delete(ctx, challengeKey(id))
}

// Consume relies on DEL being atomic: only one caller sees a count of 1.
func (r *RedisStore) Consume(ctx context.Context, id string) (bool, error) {
	n, err := r.cache.Client().Del(ctx, challengeKey(id)).Result()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	// The failure counter carries the challenge TTL, so a failed cleanup is harmless.
	_ = r.cache.Delete(ctx, failuresKey(id))
	return true, nil
}

func (r *RedisStore) AcquireCooldown(ctx context.Context, key string, d time.Duration) (bool, error) {
	return r.cache.SetNX(ctx, key, 1, d)
}

// MemoryStore is a single-process Store for tests and local runs.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	failures   map[string]int
	cooldowns  map[string]time.Time
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]*Challenge),
		failures:   make(map[string]int),
		cooldowns:  make(map[string]time.Time),
		now:        time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, c *Challenge, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.challenges[c.ID] = &cp
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok {
		return nil, errors.ErrOTPExpired
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) RecordFailure(_ context.Context, id string, _ time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id]++
	return m.failures[id], nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, id)
	delete(m.failures, id)
	return nil
}

func (m *MemoryStore) Consume(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.challenges[id]; !ok {
		return false, nil
	}
	delete(m.challenges, id)
	delete(m.failures, id)
	return true, nil
}

func (m *MemoryStore) AcquireCooldown(_ context.Context, key string, d time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if until, ok := m.cooldowns[key]; ok && now.Before(until) {
		return false, nil
	}
	m.cooldowns[key] = now.Add(d)
	return true, nil
}
