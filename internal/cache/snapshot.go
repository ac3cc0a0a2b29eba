package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-contrib/cache/persistence"

	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

// SnapshotCache holds the single precomputed top-N page. Writes replace the
// whole value, so readers see either the old snapshot or the new one.
type SnapshotCache struct {
	store persistence.CacheStore
	key   string
	now   func() time.Time
}

func NewSnapshotCache(store persistence.CacheStore, prefix string) *SnapshotCache {
	return &SnapshotCache{
		store: store,
		key:   prefix + ":snapshot:top",
		now:   time.Now,
	}
}

// Load returns the snapshot if one is stored and still inside its TTL.
// The underlying store takes no context, so ctx is only checked up front.
func (s *SnapshotCache) Load(ctx context.Context) (models.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	var snap models.Snapshot
	err := s.store.Get(s.key, &snap)
	if errors.Is(err, persistence.ErrCacheMiss) {
		return models.Snapshot{}, false, nil
	}
	if err != nil {
		return models.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Expired(s.now()) {
		return models.Snapshot{}, false, nil
	}
	return snap, true, nil
}

func (s *SnapshotCache) Store(ctx context.Context, snap models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	ttl := time.Duration(snap.TTLSeconds) * time.Second
	if ttl <= 0 {
		return fmt.Errorf("store snapshot: non-positive ttl %d", snap.TTLSeconds)
	}
	if err := s.store.Set(s.key, snap, ttl); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotCache) Invalidate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("invalidate snapshot: %w", err)
	}
	err := s.store.Delete(s.key)
	if err != nil && !errors.Is(err, persistence.ErrCacheMiss) {
		return fmt.Errorf("invalidate snapshot: %w", err)
	}
	return nil
}
