package middleware

import (
	"context"
	"time"

	"corebank/pkg/cache"
)

// RedisTokenBlacklist implements TokenBlacklist using Redis.
type RedisTokenBlacklist struct {
	cache *cache.RedisCache
}

// NewRedisTokenBlacklist creates a new RedisTokenBlacklist.
func NewRedisTokenBlacklist(c *cache.RedisCache) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{cache: c}
}

// Blacklist adds a token to the blacklist with an expiration.
func (b *RedisTokenBlacklist) Blacklist(ctx context.Context, token string, expiration time.Duration) error {
	return b.cache.Set(ctx, "blacklist:"+token, "revoked", expiration)
}

// IsBlacklisted checks if a token is in the blacklist.
func (b *RedisTokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return b.cache.Exists(ctx, "blacklist:"+token)
}
