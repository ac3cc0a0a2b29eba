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

// ApplyScoreDelta adds delta to the player's trophies, clamped at zero, and
// returns the scores before and after. The index is the only tier written
// synchronously; the durable store is updated through the write-through
// queue. A player missing from the index starts from their durable score.
func (e *Engine) ApplyScoreDelta(ctx context.Context, playerID string, delta int64, patch *models.AttributesPatch) (models.ScoreUpdate, error) {
	defer metrics.ObserveOperation("apply_score_delta", time.Now())

	if err := validatePlayerID(playerID); err != nil {
		return models.ScoreUpdate{}, err
	}

	if err := e.seedFromDurable(ctx, playerID); err != nil {
		logging.Error("Failed to seed durable score before delta", "player_id", playerID, "error", err)
		return models.ScoreUpdate{}, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}

	ictx, cancel := e.indexContext(ctx)
	previous, next, err := e.index.IncrementClamped(ictx, playerID, delta)
	cancel()
	if err != nil {
		logging.Error("Failed to apply score delta", "player_id", playerID, "delta", delta, "error", err)
		return models.ScoreUpdate{}, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}
	metrics.RecordScoreUpdate()

	if !patch.IsEmpty() {
		actx, cancel := e.indexContext(ctx)
		if err := e.attrs.Set(actx, playerID, patch); err != nil {
			logging.Error("Failed to patch player attributes", "player_id", playerID, "error", err)
		}
		cancel()
	}

	if abs(delta) >= e.cfg.InvalidationThreshold {
		e.goBackground("invalidate_snapshot", e.snapshots.Invalidate)
	}

	e.writer.Enqueue(models.ScoreWrite{
		PlayerID:  playerID,
		Score:     next,
		Patch:     patch,
		UpdatedAt: e.now(),
	})

	return models.ScoreUpdate{PlayerID: playerID, PreviousScore: previous, NewScore: next}, nil
}

// seedFromDurable puts the player's durable score into the index when the
// index does not hold it, so the delta is not applied to zero. Index errors
// are left for the increment to report. A durable error is returned, since
// incrementing from zero would later overwrite the durable score.
func (e *Engine) seedFromDurable(ctx context.Context, playerID string) error {
	ictx, cancel := e.indexContext(ctx)
	_, found, err := e.index.Score(ictx, playerID)
	cancel()
	if err != nil || found {
		return nil
	}

	dctx, cancel := e.durableContext(ctx)
	rec, err := e.durable.FindByPlayerID(dctx, playerID)
	cancel()
	known := err == nil
	if err != nil && !errors.Is(err, models.ErrPlayerNotFound) {
		return err
	}

	if !e.warming() {
		e.repopulateIfCold(ctx, known)
	}
	if !known {
		return nil
	}

	ictx, cancel = e.indexContext(ctx)
	defer cancel()
	if err := e.seedAttributes(ictx, []models.DurablePlayerRecord{rec}); err != nil {
		logging.Error("Failed to seed player attributes", "player_id", playerID, "error", err)
	}
	// NX: a concurrent delta that seeded first keeps its score.
	return e.index.Seed(ictx, []models.RankEntry{rec.Entry()})
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
