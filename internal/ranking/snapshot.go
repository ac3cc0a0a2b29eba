package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/metrics"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

var (
	errEmptyIndex   = errors.New("index is empty")
	errIndexWarming = errors.New("index is being repopulated")
)

// InvalidateSnapshot drops the cached top-N page.
func (e *Engine) InvalidateSnapshot(ctx context.Context) error {
	if err := e.snapshots.Invalidate(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}
	return nil
}

// RebuildSnapshot recomputes the top limit rows from the index and replaces
// the stored snapshot in a single write. A non-positive limit uses the
// configured snapshot size. Concurrent rebuilds share one computation, which
// runs on its own timeout so one caller giving up does not fail the others.
func (e *Engine) RebuildSnapshot(ctx context.Context, limit int) bool {
	if limit <= 0 {
		limit = e.cfg.SnapshotLimit
	}

	v, _, _ := e.group.Do(fmt.Sprintf("rebuild:%d", limit), func() (any, error) {
		ctx, cancel := withTimeout(context.WithoutCancel(ctx), e.cfg.BackgroundTimeout)
		defer cancel()

		err := e.rebuildSnapshot(ctx, limit)
		metrics.RecordSnapshotRebuild(err == nil)
		if err != nil {
			logging.Error("Snapshot rebuild failed", "limit", limit, "error", err)
			return false, nil
		}
		return true, nil
	})
	ok, _ := v.(bool)
	return ok
}

func (e *Engine) rebuildSnapshot(ctx context.Context, limit int) error {
	if e.warming() {
		return errIndexWarming
	}
	started := e.now()

	entries, err := e.index.Range(ctx, 0, int64(limit)-1)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errEmptyIndex
	}
	total, err := e.index.Cardinality(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.PlayerID
	}
	cached, err := e.attrs.BatchGet(ctx, ids)
	if err != nil {
		return err
	}

	ranks := competitionRanks(entries, 1, 1)
	rows := make([]models.LeaderboardRow, len(entries))
	for i, entry := range entries {
		attrs, ok := cached[entry.PlayerID]
		if !ok {
			attrs = models.DefaultAttributes(entry.PlayerID)
		}
		rows[i] = models.NewRow(ranks[i], entry, attrs.WithDefaults())
	}

	snap := models.Snapshot{
		Rows:       rows,
		BuiltAt:    e.now(),
		TTLSeconds: int64(e.cfg.SnapshotTTL / time.Second),
		Total:      max(total, int64(len(rows))),
	}
	if err := e.snapshots.Store(ctx, snap); err != nil {
		return err
	}

	logging.Info("Snapshot rebuilt", "rows", len(rows), "total", snap.Total, "took", e.now().Sub(started).String())
	return nil
}

// triggerRebuild rebuilds in the background. Concurrent triggers share one
// rebuild, which logs and counts its own failure.
func (e *Engine) triggerRebuild() {
	e.goBackground("rebuild_snapshot", func(ctx context.Context) error {
		e.RebuildSnapshot(ctx, 0)
		return nil
	})
}
