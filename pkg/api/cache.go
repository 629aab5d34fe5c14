package api

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/permsync/pkg/observability"
	"github.com/platinummonkey/permsync/pkg/reportstore"
)

const (
	// defaultSnapshotTTL scopes a cached permission snapshot to one
	// management dialog session
	defaultSnapshotTTL = 30 * time.Second

	// defaultSnapshotSize bounds how many users' snapshots are held
	defaultSnapshotSize = 512
)

// SnapshotCache holds short-lived per-user permission snapshots so a
// management dialog does not refetch on every interaction. Writes for a user
// must drop that user's snapshot.
type SnapshotCache struct {
	cache   *expirable.LRU[int64, []reportstore.Permission]
	metrics *observability.Metrics
}

// NewSnapshotCache creates a snapshot cache. Zero size or TTL picks the
// defaults.
func NewSnapshotCache(size int, ttl time.Duration, metrics *observability.Metrics) *SnapshotCache {
	if size <= 0 {
		size = defaultSnapshotSize
	}
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotCache{
		cache:   expirable.NewLRU[int64, []reportstore.Permission](size, nil, ttl),
		metrics: metrics,
	}
}

// Get returns the cached snapshot for a user, if fresh
func (c *SnapshotCache) Get(userID int64) ([]reportstore.Permission, bool) {
	perms, ok := c.cache.Get(userID)
	if c.metrics != nil {
		if ok {
			c.metrics.SnapshotCacheHitsTotal.Inc()
		} else {
			c.metrics.SnapshotCacheMissesTotal.Inc()
		}
	}
	return perms, ok
}

// Put stores a user's permission snapshot
func (c *SnapshotCache) Put(userID int64, perms []reportstore.Permission) {
	c.cache.Add(userID, perms)
}

// Invalidate drops a user's snapshot after a write
func (c *SnapshotCache) Invalidate(userID int64) {
	c.cache.Remove(userID)
}
