package cache

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	// DefaultQRTTL is long: verification URLs and rendering options
	// rarely change after issuance.
	DefaultQRTTL = 24 * time.Hour

	// DefaultQRMaxEntries caps the QR cache. QR PNGs are small, so the
	// bound is generous.
	DefaultQRMaxEntries = 500
)

// QROptions control QR generation. Different options for the same URL are
// distinct cache entries.
type QROptions struct {
	// Level is the error-correction level: "L", "M", "Q", or "H".
	Level string `json:"level"`
	// Size is the output edge length in pixels.
	Size int `json:"size"`
	// DisableBorder removes the quiet-zone margin.
	DisableBorder bool `json:"disable_border"`
}

// DefaultQROptions matches the editor preview: medium correction, 256px.
func DefaultQROptions() QROptions {
	return QROptions{Level: "M", Size: 256}
}

func (o QROptions) recoveryLevel() qrcode.RecoveryLevel {
	switch o.Level {
	case "L":
		return qrcode.Low
	case "Q":
		return qrcode.High
	case "H":
		return qrcode.Highest
	default:
		return qrcode.Medium
	}
}

// QRCache generates verification QR codes as PNG data URLs and memoizes
// them by (URL, options). Generation failure returns "" so a missing QR
// degrades the certificate instead of failing it.
type QRCache struct {
	mu      sync.Mutex
	entries map[string]entry[string]
	ttl     time.Duration
	max     int
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// NewQRCache creates a QR cache; zero values select the defaults.
func NewQRCache(ttl time.Duration, max int) *QRCache {
	if ttl == 0 {
		ttl = DefaultQRTTL
	}
	if max == 0 {
		max = DefaultQRMaxEntries
	}
	return &QRCache{
		entries: make(map[string]entry[string]),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

// Get returns the PNG data URL of a QR code encoding url, generating it
// on first use.
func (c *QRCache) Get(url string, opts QROptions) string {
	if opts.Size <= 0 {
		opts = DefaultQROptions()
	}
	key := fmt.Sprintf("%s|%s|%d|%t", url, opts.Level, opts.Size, opts.DisableBorder)
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.expired(now, c.ttl) {
		c.hits++
		c.mu.Unlock()
		return e.value
	}
	c.misses++
	c.mu.Unlock()

	dataURL, err := generateQR(url, opts)
	if err != nil {
		slog.Warn("qr generation failed", "url", url, "error", err)
		return ""
	}

	c.mu.Lock()
	c.entries[key] = entry[string]{value: dataURL, createdAt: now}
	if len(c.entries) > c.max {
		evictOldest(c.entries, tenthOf(c.max))
	}
	c.mu.Unlock()

	return dataURL
}

func generateQR(url string, opts QROptions) (string, error) {
	q, err := qrcode.New(url, opts.recoveryLevel())
	if err != nil {
		return "", fmt.Errorf("qr encode: %w", err)
	}
	q.DisableBorder = opts.DisableBorder
	png, err := q.PNG(opts.Size)
	if err != nil {
		return "", fmt.Errorf("qr png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Stats returns hit/miss counters and the current entry count.
func (c *QRCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
