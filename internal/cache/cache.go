// Package cache holds the process-local memoization layers of the
// rendering pipeline: fetched images, generated QR codes, and finished
// PDF buffers. All three are best-effort in-memory maps — a miss always
// falls through to a fresh computation, so cache coherency across
// instances is deliberately not attempted.
package cache

import (
	"sort"
	"time"
)

// Stats exposes hit/miss counters for the cache observability endpoint.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// entry is one cached payload with its insertion time.
type entry[V any] struct {
	value     V
	createdAt time.Time
}

// expired reports whether the entry is older than ttl at the given time.
func (e entry[V]) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.createdAt) > ttl
}

// evictOldest removes the n oldest entries by insertion time. Batch
// removal amortizes cleanup so inserts stay O(1) between evictions.
func evictOldest[V any](entries map[string]entry[V], n int) {
	if n <= 0 || len(entries) == 0 {
		return
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(entries))
	for k, e := range entries {
		all = append(all, aged{key: k, at: e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(entries, a.key)
	}
}

// tenthOf returns the batch-eviction size for a cache capacity: the
// oldest ~10%, at least one entry.
func tenthOf(max int) int {
	n := max / 10
	if n < 1 {
		n = 1
	}
	return n
}
