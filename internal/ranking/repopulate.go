package ranking

import (
	"context"
	"fmt"

	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

const repopulatePageSize = 1000

// Repopulate seeds the index and attribute cache from the durable store.
// Scores already in the index are kept, so it is safe while updates flow.
// Index reads fall back to the durable store until it finishes. Concurrent
// callers share one run, which outlives any single caller's cancellation.
// It returns the number of durable rows read.
func (e *Engine) Repopulate(ctx context.Context) (int64, error) {
	v, err, _ := e.group.Do("repopulate", func() (any, error) {
		e.repopulating.Add(1)
		defer e.repopulating.Add(-1)

		ctx, cancel := withTimeout(context.WithoutCancel(ctx), e.cfg.BackgroundTimeout)
		defer cancel()
		return e.repopulate(ctx)
	})
	if err != nil {
		return 0, err
	}
	n, _ := v.(int64)
	return n, nil
}

func (e *Engine) repopulate(ctx context.Context) (int64, error) {
	var offset int64
	for {
		records, err := e.durable.FindTopByScore(ctx, offset, repopulatePageSize)
		if err != nil {
			return offset, fmt.Errorf("repopulate: %w", err)
		}
		if len(records) == 0 {
			break
		}

		entries := make([]models.RankEntry, len(records))
		for i, rec := range records {
			entries[i] = rec.Entry()
		}
		if err := e.seedAttributes(ctx, records); err != nil {
			logging.Error("Failed to repopulate attribute cache", "offset", offset, "error", err)
		}
		if err := e.index.Seed(ctx, entries); err != nil {
			return offset, fmt.Errorf("repopulate: %w", err)
		}

		offset += int64(len(records))
		if len(records) < repopulatePageSize {
			break
		}
	}

	logging.Info("Repopulated index from durable store", "players", offset)
	return offset, nil
}

// triggerRepopulate repopulates in the background, sharing one run between
// concurrent callers. The index counts as warming from this call on.
func (e *Engine) triggerRepopulate() {
	e.repopulating.Add(1)
	e.goBackground("repopulate", func(ctx context.Context) error {
		defer e.repopulating.Add(-1)
		_, err := e.Repopulate(ctx)
		return err
	})
}

// repopulateIfCold starts a background repopulation when the index is empty
// while the durable store is not, and reports whether it did. durableKnown
// skips the player count when the caller has just read a durable row.
func (e *Engine) repopulateIfCold(ctx context.Context, durableKnown bool) bool {
	ictx, cancel := e.indexContext(ctx)
	total, err := e.index.Cardinality(ictx)
	cancel()
	if err != nil || total > 0 {
		return false
	}

	if !durableKnown {
		dctx, cancel := e.durableContext(ctx)
		players, err := e.durable.CountPlayers(dctx)
		cancel()
		if err != nil || players == 0 {
			return false
		}
	}

	logging.Warn("Score index is cold, repopulating from durable store")
	e.triggerRepopulate()
	return true
}

// ResetIndex clears the score index and the snapshot. The next read or delta
// that finds the index cold starts a repopulation from the durable store.
func (e *Engine) ResetIndex(ctx context.Context) error {
	if err := e.index.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}
	if err := e.snapshots.Invalidate(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}
	logging.Info("Score index reset")
	return nil
}
