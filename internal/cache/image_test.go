package cache

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestImageCacheGetAndHit(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	c := NewImageCache(srv.Client(), 0, 0)
	ctx := context.Background()

	first := c.Get(ctx, srv.URL+"/bg.png")
	if !strings.HasPrefix(first, "data:image/png;base64,") {
		t.Fatalf("unexpected data url: %q", first)
	}
	second := c.Get(ctx, srv.URL+"/bg.png")
	if second != first {
		t.Errorf("repeat get returned different value")
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("expected 1 upstream fetch, got %d", n)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit / 1 miss", stats)
	}
}

func TestImageCacheFailureReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewImageCache(srv.Client(), 0, 0)
	if got := c.Get(context.Background(), srv.URL+"/missing.png"); got != "" {
		t.Errorf("failed fetch returned %q, want empty sentinel", got)
	}
	// The failure is not cached: a later success must get through.
	if c.Stats().Entries != 0 {
		t.Errorf("failure was cached")
	}
}

func TestImageCacheTTLExpiry(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	c := NewImageCache(srv.Client(), 0, 0)
	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	c.Get(ctx, srv.URL+"/a.jpg")

	// Within TTL: served from cache.
	now = now.Add(DefaultImageTTL - time.Minute)
	c.Get(ctx, srv.URL+"/a.jpg")
	if n := fetches.Load(); n != 1 {
		t.Fatalf("fetched %d times within TTL, want 1", n)
	}

	// Past TTL: refetched.
	now = now.Add(2 * time.Minute)
	c.Get(ctx, srv.URL+"/a.jpg")
	if n := fetches.Load(); n != 2 {
		t.Errorf("fetched %d times after TTL, want 2", n)
	}
}

func TestImageCacheEvictionBound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	const max = 20
	c := NewImageCache(srv.Client(), 0, max)
	base := time.Now()
	i := 0
	c.now = func() time.Time { i++; return base.Add(time.Duration(i) * time.Millisecond) }

	ctx := context.Background()
	for n := 0; n < max*3; n++ {
		c.Get(ctx, fmt.Sprintf("%s/img-%d.png", srv.URL, n))
	}
	if got := c.Stats().Entries; got > max {
		t.Errorf("entry count %d exceeds max %d", got, max)
	}
}

func TestImageCacheInvalidate(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("v"))
	}))
	defer srv.Close()

	c := NewImageCache(srv.Client(), 0, 0)
	ctx := context.Background()
	url := srv.URL + "/bg.png"

	c.Get(ctx, url)
	c.Invalidate(url)
	c.Get(ctx, url)
	if n := fetches.Load(); n != 2 {
		t.Errorf("invalidate did not force a refetch: %d fetches", n)
	}
}

func TestImageCacheInvalidateStale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("v"))
	}))
	defer srv.Close()

	c := NewImageCache(srv.Client(), 0, 0)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Get(ctx, srv.URL+"/old.png")
	now = now.Add(90 * time.Minute)
	c.Get(ctx, srv.URL+"/new.png")

	if removed := c.InvalidateStale(StaleImageAge); removed != 1 {
		t.Errorf("InvalidateStale removed %d, want 1", removed)
	}
	if got := c.Stats().Entries; got != 1 {
		t.Errorf("entries after stale sweep = %d, want 1", got)
	}
}
