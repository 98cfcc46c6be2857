package services

import (
	"sync"
	"time"

	"statwatch/internal/models"
)

// SnapshotTTL is how long a host snapshot stays readable after its last merge
const SnapshotTTL = 5 * time.Minute

// SnapshotPatch carries the fields a merge writes. Nil fields are left untouched;
// a non-nil empty slice or map replaces the stored value.
type SnapshotPatch struct {
	PointStats         *models.PointStats
	ChartBuffer        *models.ChartBuffer
	LastSeenCounters   models.LastSeenCounters
	AvailableDeviceIDs []string
	LatestRate         *models.RateSample
	ClearLatestRate    bool
}

// SnapshotCache holds the latest derived state per monitored host.
//
// Entries are replaced wholesale on every merge and never modified in place, so a
// reader always sees either the previous or the next snapshot. Expiry is lazy: an
// entry older than the TTL is dropped by the read that notices it (or by Sweep).
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]*models.EntitySnapshot
	ttl     time.Duration
	now     func() time.Time
}

// NewSnapshotCache creates an empty cache with the standard TTL
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		entries: make(map[string]*models.EntitySnapshot),
		ttl:     SnapshotTTL,
		now:     time.Now,
	}
}

// isExpired reports whether the snapshot is older than the TTL.
// A snapshot exactly TTL old is still valid.
func (c *SnapshotCache) isExpired(s *models.EntitySnapshot, now time.Time) bool {
	return now.Sub(s.LastRefreshedAt) > c.ttl
}

// Get returns the host's snapshot, evicting it if it has expired
func (c *SnapshotCache) Get(hostID string) (models.EntitySnapshot, bool) {
	now := c.now()

	c.mu.RLock()
	s, ok := c.entries[hostID]
	c.mu.RUnlock()
	if !ok {
		return models.EntitySnapshot{}, false
	}

	if c.isExpired(s, now) {
		c.mu.Lock()
		// a concurrent merge may have replaced the entry since the read
		if cur, ok := c.entries[hostID]; ok && cur == s {
			delete(c.entries, hostID)
		}
		c.mu.Unlock()
		return models.EntitySnapshot{}, false
	}

	return cloneSnapshot(s), true
}

// Has reports whether a live snapshot exists without evicting anything
func (c *SnapshotCache) Has(hostID string) bool {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.entries[hostID]
	return ok && !c.isExpired(s, now)
}

// Merge upserts the fields present in patch into the host's snapshot and
// refreshes its timestamp. The merged snapshot is returned.
func (c *SnapshotCache) Merge(hostID string, patch SnapshotPatch) models.EntitySnapshot {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	next := models.EntitySnapshot{HostID: hostID}
	if cur, ok := c.entries[hostID]; ok && !c.isExpired(cur, now) {
		next = *cur
	}

	if patch.PointStats != nil {
		next.PointStats = patch.PointStats
	}
	if patch.ChartBuffer != nil {
		next.ChartBuffer = *patch.ChartBuffer
	}
	if patch.LastSeenCounters != nil {
		next.LastSeenCounters = patch.LastSeenCounters.Clone()
	}
	if patch.AvailableDeviceIDs != nil {
		next.AvailableDeviceIDs = cloneStrings(patch.AvailableDeviceIDs)
	}
	if patch.ClearLatestRate {
		next.LatestRate = nil
	}
	if patch.LatestRate != nil {
		rate := *patch.LatestRate
		next.LatestRate = &rate
	}
	next.LastRefreshedAt = now

	c.entries[hostID] = &next
	return cloneSnapshot(&next)
}

// Clear drops the host's snapshot
func (c *SnapshotCache) Clear(hostID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, hostID)
}

// ClearAll drops every snapshot
func (c *SnapshotCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*models.EntitySnapshot)
}

// Sweep evicts every expired snapshot and returns how many were removed
func (c *SnapshotCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for hostID, s := range c.entries {
		if c.isExpired(s, now) {
			delete(c.entries, hostID)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cloneSnapshot copies the mutable containers so callers cannot reach stored state
func cloneSnapshot(s *models.EntitySnapshot) models.EntitySnapshot {
	out := *s
	if s.LastSeenCounters != nil {
		out.LastSeenCounters = s.LastSeenCounters.Clone()
	}
	if s.AvailableDeviceIDs != nil {
		out.AvailableDeviceIDs = cloneStrings(s.AvailableDeviceIDs)
	}
	if s.LatestRate != nil {
		rate := *s.LatestRate
		out.LatestRate = &rate
	}
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
