package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestQRCacheGet(t *testing.T) {
	c := NewQRCache(0, 0)

	first := c.Get("https://example.com/verify/CERT-1", DefaultQROptions())
	if !strings.HasPrefix(first, "data:image/png;base64,") {
		t.Fatalf("unexpected data url: %.40q", first)
	}

	second := c.Get("https://example.com/verify/CERT-1", DefaultQROptions())
	if second != first {
		t.Error("repeat get regenerated the code")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit / 1 miss", stats)
	}
}

func TestQRCacheOptionsAreDistinct(t *testing.T) {
	c := NewQRCache(0, 0)
	url := "https://example.com/verify/CERT-1"

	c.Get(url, QROptions{Level: "M", Size: 256})
	c.Get(url, QROptions{Level: "H", Size: 256})
	c.Get(url, QROptions{Level: "M", Size: 512})

	if got := c.Stats(); got.Entries != 3 || got.Misses != 3 {
		t.Errorf("stats = %+v, want 3 distinct entries", got)
	}
}

func TestQRCacheFailureReturnsEmpty(t *testing.T) {
	c := NewQRCache(0, 0)
	// Far beyond QR capacity: generation fails, caller gets the sentinel.
	huge := strings.Repeat("x", 8000)
	if got := c.Get(huge, DefaultQROptions()); got != "" {
		t.Errorf("expected empty sentinel, got %d bytes", len(got))
	}
	if c.Stats().Entries != 0 {
		t.Error("failure was cached")
	}
}

func TestQRCacheEvictionBound(t *testing.T) {
	const max = 20
	c := NewQRCache(0, max)
	base := time.Now()
	i := 0
	c.now = func() time.Time { i++; return base.Add(time.Duration(i) * time.Second) }

	for n := 0; n < max*2; n++ {
		c.Get(fmt.Sprintf("https://example.com/verify/CERT-%d", n), QROptions{Level: "L", Size: 64})
	}
	if got := c.Stats().Entries; got > max {
		t.Errorf("entry count %d exceeds max %d", got, max)
	}
}

func TestQRCacheTTL(t *testing.T) {
	c := NewQRCache(0, 0)
	now := time.Now()
	c.now = func() time.Time { return now }

	url := "https://example.com/verify/CERT-1"
	c.Get(url, DefaultQROptions())

	now = now.Add(DefaultQRTTL + time.Hour)
	c.Get(url, DefaultQROptions())
	if got := c.Stats(); got.Misses != 2 {
		t.Errorf("expired entry served from cache: %+v", got)
	}
}
