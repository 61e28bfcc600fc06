package middleware

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"corebank/pkg/cache"
)

// memCache mirrors the JSON round trip of cache.RedisCache.
type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	counts map[string]int64
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, counts: map[string]int64{}}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key] = b
	c.mu.Unlock()
	return nil
}

func (c *memCache) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = b
	return true, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

func (c *memCache) Increment(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func (c *memCache) Expire(context.Context, string, time.Duration) error { return nil }

type staticBlacklist map[string]bool

func (b staticBlacklist) IsBlacklisted(_ context.Context, token string) (bool, error) {
	return b[token], nil
}
