// Package cache provides the ephemeral read cache: a short-lived mirror of
// last-known-good query results, used to paint the UI before the record
// store or the network answers. Entries are stored serialized, the way a
// localStorage-class substrate holds them, so corruption degrades to a
// cache miss instead of an error. This layer is allowed to forget; it is
// never a write path.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// FreshnessWindow is the maximum entry age. Reads past it are misses, never
// silently stale data.
const FreshnessWindow = 300_000 * time.Millisecond

// Version tags every entry; entries written by an older scheme are treated
// as absent and purged on read. Bump it when the cached shape changes.
const Version = "v2"

// entry is the serialized envelope stored per key.
type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // milliseconds
	Version   string          `json:"version"`
}

// ReadCache holds one independently invalidatable entry per key (one key
// per entity table and scope, never a single blob).
type ReadCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
	version string
	maxAge  time.Duration
	now     func() time.Time
}

// Option configures a ReadCache.
type Option func(*ReadCache)

// WithVersion overrides the expected version tag.
func WithVersion(v string) Option {
	return func(c *ReadCache) { c.version = v }
}

// WithMaxAge overrides the freshness window.
func WithMaxAge(d time.Duration) Option {
	return func(c *ReadCache) { c.maxAge = d }
}

// WithClock overrides the time source. Tests use it to age entries.
func WithClock(now func() time.Time) Option {
	return func(c *ReadCache) { c.now = now }
}

// New creates an empty ReadCache.
func New(opts ...Option) *ReadCache {
	c := &ReadCache{
		entries: make(map[string][]byte),
		version: Version,
		maxAge:  FreshnessWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached data for key, or (nil, false) on a miss. An entry
// that is absent, malformed, version-mismatched, or older than the
// freshness window is a miss and is purged before returning.
func (c *ReadCache) Get(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	raw, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.Invalidate(key)
		return nil, false
	}
	if e.Version != c.version {
		c.Invalidate(key)
		return nil, false
	}
	age := c.now().UnixMilli() - e.Timestamp
	if age > c.maxAge.Milliseconds() {
		c.Invalidate(key)
		return nil, false
	}
	return e.Data, true
}

// Set stores data under key with the current timestamp and version tag,
// unconditionally overwriting any prior entry.
func (c *ReadCache) Set(key string, data json.RawMessage) {
	raw, err := json.Marshal(entry{
		Data:      data,
		Timestamp: c.now().UnixMilli(),
		Version:   c.version,
	})
	if err != nil {
		// Data is json.RawMessage; marshalling the envelope cannot fail
		// with valid input. Degrade to not caching.
		return
	}

	c.mu.Lock()
	c.entries[key] = raw
	c.mu.Unlock()
}

// Invalidate removes the entry for key.
func (c *ReadCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *ReadCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string][]byte)
	c.mu.Unlock()
}

// Keys returns the currently stored keys, for the debug surface.
func (c *ReadCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Stats returns the entry count and total serialized bytes held.
func (c *ReadCache) Stats() (entries int, bytes int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, raw := range c.entries {
		bytes += int64(len(raw))
	}
	return len(c.entries), bytes
}

// putRaw stores pre-serialized envelope bytes. Tests use it to simulate a
// corrupted or foreign-version substrate.
func (c *ReadCache) putRaw(key string, raw []byte) {
	c.mu.Lock()
	c.entries[key] = raw
	c.mu.Unlock()
}
