package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	radix "github.com/mediocregopher/radix/v3"
)

// TokenCache keeps resolved customer principals in Redis so repeated poll
// requests skip the identity lookup. A nil *TokenCache is a valid no-op cache.
type TokenCache struct {
	redis radix.Client
	ttl   time.Duration
}

func NewTokenCache(redis radix.Client, ttl time.Duration) *TokenCache {
	if redis == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenCache{redis: redis, ttl: ttl}
}

func (c *TokenCache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "livechat:token:" + hex.EncodeToString(sum[:])
}

func (c *TokenCache) Get(ctx context.Context, token string) (Principal, bool, error) {
	if c == nil {
		return Principal{}, false, nil
	}
	var raw string
	if err := c.redis.Do(radix.Cmd(&raw, "GET", c.key(token))); err != nil {
		return Principal{}, false, err
	}
	if raw == "" {
		return Principal{}, false, nil
	}
	var p Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		_ = c.redis.Do(radix.Cmd(nil, "DEL", c.key(token)))
		return Principal{}, false, nil
	}
	return p, true, nil
}

func (c *TokenCache) Set(ctx context.Context, token string, p Principal) error {
	if c == nil {
		return nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.redis.Do(radix.FlatCmd(nil, "SETEX", c.key(token), int64(c.ttl/time.Second), body))
}
