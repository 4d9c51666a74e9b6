// Package cache keeps recently used settings snapshots in memory and drops
// them when PostgreSQL announces a change.
package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"fieldsettings/internal/domain/fieldsettings"
)

// DefaultSize is the number of institutes kept when no size is configured.
const DefaultSize = 256

// Compile-time check that SnapshotCache implements the reconciler cache.
var _ fieldsettings.SnapshotCache = (*SnapshotCache)(nil)

// SnapshotCache is a size-bounded LRU of snapshots keyed by institute id.
// Values are copied in and out, so callers never share state with the cache.
type SnapshotCache struct {
	lru    *lru.Cache[string, *fieldsettings.Snapshot]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewSnapshotCache creates a cache holding up to size snapshots.
func NewSnapshotCache(size int) (*SnapshotCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, *fieldsettings.Snapshot](size)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	return &SnapshotCache{lru: c}, nil
}

// Get returns a copy of the cached snapshot.
func (c *SnapshotCache) Get(key string) (*fieldsettings.Snapshot, bool) {
	s, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return s.Clone(), true
}

// Add stores a copy of s.
func (c *SnapshotCache) Add(key string, s *fieldsettings.Snapshot) {
	if s == nil {
		return
	}
	c.lru.Add(key, s.Clone())
}

// Remove drops one entry.
func (c *SnapshotCache) Remove(key string) {
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *SnapshotCache) Purge() {
	c.lru.Purge()
}

// Stats describes cache usage.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Stats returns current cache statistics.
func (c *SnapshotCache) Stats() Stats {
	return Stats{
		Entries: c.lru.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
