package cache

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/image/webp"
)

const (
	// DefaultImageTTL is how long a fetched image stays embeddable
	// without a refetch.
	DefaultImageTTL = 4 * time.Hour

	// DefaultImageMaxEntries caps the image cache before batch eviction.
	DefaultImageMaxEntries = 200

	// StaleImageAge marks entries old enough for bulk invalidation when a
	// template background changes, without waiting for full TTL expiry.
	StaleImageAge = 1 * time.Hour

	// maxImageBytes bounds a single fetched image. Anything larger is
	// treated as a fetch failure.
	maxImageBytes = 20 << 20
)

// ImageCache fetches remote images and memoizes them as inline data URLs
// ready for PDF embedding, keyed by source URL. Fetch failures return the
// empty string: a missing decorative image never fails an issuance.
type ImageCache struct {
	mu      sync.Mutex
	entries map[string]entry[string]
	client  *http.Client
	ttl     time.Duration
	max     int
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// NewImageCache creates an image cache with the given TTL and capacity.
// Zero values select the defaults.
func NewImageCache(client *http.Client, ttl time.Duration, max int) *ImageCache {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if ttl == 0 {
		ttl = DefaultImageTTL
	}
	if max == 0 {
		max = DefaultImageMaxEntries
	}
	return &ImageCache{
		entries: make(map[string]entry[string]),
		client:  client,
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

// Get returns the data URL for a remote image, fetching and encoding it on
// first use. Returns "" on any failure.
func (c *ImageCache) Get(ctx context.Context, url string) string {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[url]; ok && !e.expired(now, c.ttl) {
		c.hits++
		c.mu.Unlock()
		return e.value
	}
	c.misses++
	c.mu.Unlock()

	dataURL, err := c.fetch(ctx, url)
	if err != nil {
		slog.Warn("image fetch failed", "url", url, "error", err)
		return ""
	}

	c.mu.Lock()
	c.entries[url] = entry[string]{value: dataURL, createdAt: now}
	if len(c.entries) > c.max {
		evictOldest(c.entries, tenthOf(c.max))
	}
	c.mu.Unlock()

	return dataURL
}

// fetch downloads the image and converts it to a data URL. webp payloads
// are transcoded to PNG because the PDF embedder cannot consume webp.
func (c *ImageCache) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	if contentType == "image/webp" {
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("decode webp: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("transcode webp: %w", err)
		}
		data = buf.Bytes()
		contentType = "image/png"
	}

	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Invalidate drops the cached entry for one URL. Used when a template's
// background image is replaced under the same URL.
func (c *ImageCache) Invalidate(url string) {
	c.mu.Lock()
	delete(c.entries, url)
	c.mu.Unlock()
}

// InvalidateStale drops every entry older than maxAge. Called on template
// updates so edited backgrounds refresh ahead of TTL expiry.
func (c *ImageCache) InvalidateStale(maxAge time.Duration) int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for url, e := range c.entries {
		if now.Sub(e.createdAt) > maxAge {
			delete(c.entries, url)
			removed++
		}
	}
	return removed
}

// Stats returns hit/miss counters and the current entry count.
func (c *ImageCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
