package cache

import (
	"context"
	"os"
	"testing"
)

// testValkeyClient returns a client for integration tests, skipping when
// Valkey is unreachable.
func testValkeyClient(t *testing.T) *VerifyPageCache {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")

	client, err := ConnectValkey(host, port, os.Getenv("VALKEY_PASSWORD"))
	if err != nil {
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, verifyKeyPrefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})
	return NewVerifyPageCache(client, 0)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestVerifyPageCacheRoundTrip(t *testing.T) {
	c := testValkeyClient(t)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "CERT-TEST-1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Set(ctx, "CERT-TEST-1", []byte("<html>ok</html>"))
	got, ok := c.Get(ctx, "CERT-TEST-1")
	if !ok || string(got) != "<html>ok</html>" {
		t.Errorf("round trip failed: ok=%v body=%q", ok, got)
	}

	c.Invalidate(ctx, "CERT-TEST-1")
	if _, ok := c.Get(ctx, "CERT-TEST-1"); ok {
		t.Error("entry survived invalidation")
	}
}

func TestVerifyPageCacheNilSafe(t *testing.T) {
	var c *VerifyPageCache
	ctx := context.Background()

	// A nil cache (Valkey not configured) degrades to always-miss.
	if _, ok := c.Get(ctx, "CERT-1"); ok {
		t.Error("nil cache reported a hit")
	}
	c.Set(ctx, "CERT-1", []byte("x"))
	c.Invalidate(ctx, "CERT-1")
}
