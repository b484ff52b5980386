// Package cache holds the last-known-good secret values served to readers.
//
// Writers never touch entries directly. A refresh cycle collects its results
// in a Batch and applies them with a single Merge, which enforces the
// overwrite contract: a successful fetch always replaces the entry, a failed
// fetch only records its sentinel when no good value exists for the key.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/systmms/btbroker/internal/secure"
)

// Sentinel values stored for a key whose fetch failed before any good value
// was ever obtained.
const (
	SentinelRequestIDNotFound = "ERROR_REQ_ID_NOT_FOUND"
	SentinelException         = "ERROR_EXCEPTION"
	SentinelCredentialFailed  = "ERROR_CRED_FAIL"
)

// IsSentinel reports whether v is one of the failure sentinels.
func IsSentinel(v string) bool {
	switch v {
	case SentinelRequestIDNotFound, SentinelException, SentinelCredentialFailed:
		return true
	}
	return false
}

type entry struct {
	key       string
	value     *secure.Value
	good      bool
	updatedAt time.Time
}

// Info describes an entry without revealing its value.
type Info struct {
	Key       string
	Good      bool
	UpdatedAt time.Time
}

// Cache is safe for concurrent use. Lookups ignore key case; the key keeps
// the casing it was first written with.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get returns the current value for key, good or sentinel.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[normalize(key)]
	if !ok {
		return "", false
	}
	v, err := e.value.Reveal()
	if err != nil {
		return "", false
	}
	return v, true
}

// Value returns the current value for key or "" when the key is unknown.
func (c *Cache) Value(key string) string {
	v, _ := c.Get(key)
	return v
}

// LastGood returns the value of the last successful fetch for key. Sentinels
// are never returned.
func (c *Cache) LastGood(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[normalize(key)]
	if !ok || !e.good {
		return "", false
	}
	v, err := e.value.Reveal()
	if err != nil {
		return "", false
	}
	return v, true
}

// Describe returns metadata for key.
func (c *Cache) Describe(key string) (Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[normalize(key)]
	if !ok {
		return Info{}, false
	}
	return Info{Key: e.key, Good: e.good, UpdatedAt: e.updatedAt}, true
}

// Keys returns all keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, e.key)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot copies every entry into a plain map. Callers own the plaintext.
func (c *Cache) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.entries))
	for _, e := range c.entries {
		if v, err := e.value.Reveal(); err == nil {
			out[e.key] = v
		}
	}
	return out
}

// MergeStats summarizes what a Merge changed.
type MergeStats struct {
	// Written counts successful values stored.
	Written int
	// Sentinels counts failures recorded because no good value existed.
	Sentinels int
	// Retained counts failures that left a prior good value in place.
	Retained int
}

// Merge applies b in order under one write lock.
func (c *Cache) Merge(b *Batch) MergeStats {
	var stats MergeStats
	if b == nil {
		return stats
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, u := range b.updates {
		k := normalize(u.key)
		prev, exists := c.entries[k]

		if !u.ok && exists && prev.good {
			stats.Retained++
			continue
		}

		name := u.key
		if exists {
			name = prev.key
			prev.value.Destroy()
		}
		c.entries[k] = &entry{
			key:       name,
			value:     secure.NewValue(u.value),
			good:      u.ok,
			updatedAt: now,
		}
		if u.ok {
			stats.Written++
		} else {
			stats.Sentinels++
		}
	}
	return stats
}

// Close destroys every stored value and empties the cache.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		e.value.Destroy()
		delete(c.entries, k)
	}
}
