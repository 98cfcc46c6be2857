package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCacheSweeperSchedule(t *testing.T) {
	cache := NewSnapshotCache()

	_, err := NewCacheSweeper("every now and then", cache, zap.NewNop())
	assert.Error(t, err)

	for _, spec := range []string{"@every 1m", "0 */5 * * * *", "*/5 * * * *"} {
		s, err := NewCacheSweeper(spec, cache, zap.NewNop())
		require.NoError(t, err, spec)
		s.Start()
		s.Stop()
	}
}

func TestCacheSweeperEvictsExpired(t *testing.T) {
	clock := newFakeClock()
	cache := newTestCache(clock)
	cache.Merge("stale", SnapshotPatch{})
	clock.Advance(SnapshotTTL + time.Second)
	cache.Merge("fresh", SnapshotPatch{})

	s, err := NewCacheSweeper("@every 1m", cache, zap.NewNop())
	require.NoError(t, err)
	s.sweep()

	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Has("fresh"))
}
