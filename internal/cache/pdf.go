package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/raphaelbarrox/certificate-sub000/internal/models"
)

const (
	// DefaultPDFTTL is how long a rendered PDF stays reusable.
	DefaultPDFTTL = 2 * time.Hour

	// DefaultPDFMaxEntries caps the PDF cache; PDFs are the largest
	// payloads, so the bound is tighter than the other caches.
	DefaultPDFMaxEntries = 100
)

// pdfEntry pairs a rendered buffer with the certificate number the render
// was produced for. The number travels with the bytes because the printed
// certificate id and QR link are part of the render inputs: a buffer is
// only valid for the certificate it was rendered as.
type pdfEntry struct {
	pdf    []byte
	number string
}

// PDFCache memoizes finished PDF buffers per (template, recipient data)
// pair so repeat renders of the same certificate skip the renderer
// entirely. It is a pure optimization: a hit must be byte-identical to a
// fresh render, which is why every data-changing path force-invalidates
// and why callers must check the returned number against their own.
type PDFCache struct {
	mu      sync.Mutex
	entries map[string]entry[pdfEntry]
	// byTemplate indexes keys per template so a design change can drop
	// every cached render of that template without a full scan.
	byTemplate map[string]map[string]struct{}
	ttl        time.Duration
	max        int
	hits       uint64
	misses     uint64
	now        func() time.Time
}

// NewPDFCache creates a PDF cache; zero values select the defaults.
func NewPDFCache(ttl time.Duration, max int) *PDFCache {
	if ttl == 0 {
		ttl = DefaultPDFTTL
	}
	if max == 0 {
		max = DefaultPDFMaxEntries
	}
	return &PDFCache{
		entries:    make(map[string]entry[pdfEntry]),
		byTemplate: make(map[string]map[string]struct{}),
		ttl:        ttl,
		max:        max,
		now:        time.Now,
	}
}

// Key derives the deterministic cache key: template ID plus a hash of the
// recipient data serialized with lexicographically sorted keys, so two
// semantically equal maps hash identically regardless of insertion order.
func Key(templateID string, data models.RecipientData) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		// JSON-encode each side so separators inside values cannot
		// collide with the framing.
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(data[k])
		h.Write(kb)
		h.Write([]byte{':'})
		h.Write(vb)
		h.Write([]byte{'\n'})
	}
	return templateID + ":" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached PDF and the certificate number it was rendered
// for, or (nil, "") on miss/expiry. Callers must treat a number mismatch
// as a miss: the buffer has another certificate's id and QR link baked in.
func (c *PDFCache) Get(templateID string, data models.RecipientData) ([]byte, string) {
	key := Key(templateID, data)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(now, c.ttl) {
		c.misses++
		return nil, ""
	}
	c.hits++
	return e.value.pdf, e.value.number
}

// Set stores a PDF rendered for one certificate number, evicting the
// oldest entry on overflow.
func (c *PDFCache) Set(templateID string, data models.RecipientData, number string, pdf []byte) {
	key := Key(templateID, data)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[pdfEntry]{value: pdfEntry{pdf: pdf, number: number}, createdAt: c.now()}
	if c.byTemplate[templateID] == nil {
		c.byTemplate[templateID] = make(map[string]struct{})
	}
	c.byTemplate[templateID][key] = struct{}{}

	if len(c.entries) > c.max {
		evictOldest(c.entries, len(c.entries)-c.max)
		c.pruneIndex()
	}
}

// Invalidate drops the exact (template, data) entry.
func (c *PDFCache) Invalidate(templateID string, data models.RecipientData) {
	key := Key(templateID, data)
	c.mu.Lock()
	delete(c.entries, key)
	if idx := c.byTemplate[templateID]; idx != nil {
		delete(idx, key)
	}
	c.mu.Unlock()
}

// InvalidateTemplate drops every cached render of a template. Called when
// the template's design changes, which makes every entry stale at once.
func (c *PDFCache) InvalidateTemplate(templateID string) {
	c.mu.Lock()
	for key := range c.byTemplate[templateID] {
		delete(c.entries, key)
	}
	delete(c.byTemplate, templateID)
	c.mu.Unlock()
}

// ForceInvalidate drops the exact entry and, defensively, the whole
// template's cache. Used on certificate re-issue, where serving any stale
// PDF would be a correctness defect.
func (c *PDFCache) ForceInvalidate(templateID string, data models.RecipientData) {
	c.Invalidate(templateID, data)
	c.InvalidateTemplate(templateID)
}

// pruneIndex drops index keys whose entries were evicted. Caller holds mu.
func (c *PDFCache) pruneIndex() {
	for tid, idx := range c.byTemplate {
		for key := range idx {
			if _, ok := c.entries[key]; !ok {
				delete(idx, key)
			}
		}
		if len(idx) == 0 {
			delete(c.byTemplate, tid)
		}
	}
}

// Stats returns hit/miss counters and the current entry count.
func (c *PDFCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
