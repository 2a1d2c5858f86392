package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// verifyKeyPrefix namespaces verification-page keys in Valkey.
	verifyKeyPrefix = "verify:"

	// DefaultVerifyPageTTL is how long a rendered verification page stays
	// cached. Short, because a re-issue must become visible quickly.
	DefaultVerifyPageTTL = 10 * time.Minute
)

// VerifyPageCache stores rendered verification-page HTML in Valkey so the
// public /verify endpoint skips the database and template execution on
// repeat hits. Unlike the in-memory render caches this one is shared
// across instances, since verification pages have no per-instance state.
type VerifyPageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewVerifyPageCache creates a verification-page cache. A zero ttl
// selects the default.
func NewVerifyPageCache(client *redis.Client, ttl time.Duration) *VerifyPageCache {
	if ttl == 0 {
		ttl = DefaultVerifyPageTTL
	}
	return &VerifyPageCache{client: client, ttl: ttl}
}

// Get retrieves cached HTML for a certificate number. All errors degrade
// to a miss.
func (c *VerifyPageCache) Get(ctx context.Context, number string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, verifyKeyPrefix+number).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("verify page cache get error", "number", number, "error", err)
		return nil, false
	}
	return val, true
}

// Set stores rendered HTML for a certificate number.
func (c *VerifyPageCache) Set(ctx context.Context, number string, html []byte) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, verifyKeyPrefix+number, html, c.ttl).Err(); err != nil {
		slog.Warn("verify page cache set error", "number", number, "error", err)
	}
}

// Invalidate removes the cached page for one certificate. Called on
// re-issue so the refreshed data is visible immediately.
func (c *VerifyPageCache) Invalidate(ctx context.Context, number string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, verifyKeyPrefix+number).Err(); err != nil {
		slog.Warn("verify page cache invalidate error", "number", number, "error", err)
	}
}
