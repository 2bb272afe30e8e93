package redis

import (
	"context"
	"errors"

	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/query"
)

// StatsSnapshotCache implements query.SnapshotCache using the generic Redis Cache.
type StatsSnapshotCache struct {
	cache *Cache
}

// NewStatsSnapshotCache creates a new StatsSnapshotCache.
func NewStatsSnapshotCache(cache *Cache) *StatsSnapshotCache {
	return &StatsSnapshotCache{
		cache: cache,
	}
}

// Get returns the cached snapshot of a user. A cache miss is not an error.
func (s *StatsSnapshotCache) Get(ctx context.Context, userID string) (*query.StatsSnapshotDTO, bool, error) {
	var snapshot query.StatsSnapshotDTO
	err := s.cache.Get(ctx, StatsKey(userID), &snapshot)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &snapshot, true, nil
}

// Set stores the snapshot of a user.
func (s *StatsSnapshotCache) Set(ctx context.Context, userID string, snapshot *query.StatsSnapshotDTO) error {
	if snapshot == nil {
		return nil
	}
	return s.cache.Set(ctx, StatsKey(userID), snapshot, TTLStatsSnapshot)
}

// Invalidate removes the cached snapshot of a user.
func (s *StatsSnapshotCache) Invalidate(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, StatsKey(userID))
}

// InvalidateAll clears all cached snapshots.
func (s *StatsSnapshotCache) InvalidateAll(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, PrefixStats+"*")
}
