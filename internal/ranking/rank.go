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

// GetRank returns the player's competition rank. A player unknown to every
// tier is reported with found == false and a nil error.
func (e *Engine) GetRank(ctx context.Context, playerID string) (models.PlayerRank, bool, error) {
	defer metrics.ObserveOperation("get_rank", time.Now())

	if err := validatePlayerID(playerID); err != nil {
		return models.PlayerRank{}, false, err
	}

	ictx, cancel := e.indexContext(ctx)
	score, rank, found, err := e.index.RankOf(ictx, playerID)
	cancel()

	// A partly repopulated index undercounts the players ahead.
	if err == nil && found && !e.warming() {
		return e.indexRank(ctx, playerID, score, rank), true, nil
	}

	if err != nil {
		logging.Error("Index rank lookup failed, falling back to durable store", "player_id", playerID, "error", err)
	}
	metrics.RecordFallback("get_rank", string(models.SourceDurable))

	result, ok, derr := e.durableRank(ctx, playerID)
	if !ok && err == nil && found {
		// Only the index knows this player yet.
		return e.indexRank(ctx, playerID, score, rank), true, nil
	}
	return result, ok, derr
}

func (e *Engine) indexRank(ctx context.Context, playerID string, score, rank int64) models.PlayerRank {
	attrs := e.resolveAttributes(ctx, []string{playerID})
	return models.PlayerRank{
		Rank:       rank,
		Score:      score,
		Attributes: attrs[playerID],
		Source:     models.SourceIndex,
	}
}

func (e *Engine) durableRank(ctx context.Context, playerID string) (models.PlayerRank, bool, error) {
	dctx, cancel := e.durableContext(ctx)
	defer cancel()

	rec, err := e.durable.FindByPlayerID(dctx, playerID)
	if errors.Is(err, models.ErrPlayerNotFound) {
		return models.PlayerRank{}, false, nil
	}
	if err != nil {
		return models.PlayerRank{}, false, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}

	greater, err := e.durable.CountScoresGreaterThan(dctx, rec.Score)
	if err != nil {
		return models.PlayerRank{}, false, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}

	// Seeding one player into an empty index would make it rank first
	// there, so a cold index is refilled whole.
	if !e.warming() && !e.repopulateIfCold(ctx, true) {
		e.backfill([]models.DurablePlayerRecord{rec})
	}

	return models.PlayerRank{
		Rank:       greater + 1,
		Score:      rec.Score,
		Attributes: rec.Attributes(),
		Source:     models.SourceDurable,
	}, true, nil
}

// resolveAttributes reads attributes for ids in one batch. Every id gets an
// entry; unknown players get defaults and are backfilled in the background.
func (e *Engine) resolveAttributes(ctx context.Context, ids []string) map[string]models.PlayerAttributes {
	actx, cancel := e.indexContext(ctx)
	cached, err := e.attrs.BatchGet(actx, ids)
	cancel()
	if err != nil {
		logging.Error("Attribute cache read failed, using defaults", "players", len(ids), "error", err)
		metrics.RecordFallback("attributes", "defaults")
		cached = nil
	}

	resolved := make(map[string]models.PlayerAttributes, len(ids))
	var missing []string
	for _, id := range ids {
		if attrs, ok := cached[id]; ok {
			resolved[id] = attrs.WithDefaults()
			continue
		}
		resolved[id] = models.DefaultAttributes(id)
		missing = append(missing, id)
	}

	if err == nil && len(missing) > 0 {
		e.goBackground("backfill_attributes", func(ctx context.Context) error {
			records, err := e.durable.FindByPlayerIDs(ctx, missing)
			if err != nil {
				return err
			}
			return e.seedAttributes(ctx, records)
		})
	}

	return resolved
}

// backfill seeds the attribute cache, then the index, from durable rows
// without overwriting anything already cached.
func (e *Engine) backfill(records []models.DurablePlayerRecord) {
	if len(records) == 0 {
		return
	}
	e.goBackground("backfill_index", func(ctx context.Context) error {
		entries := make([]models.RankEntry, len(records))
		for i, rec := range records {
			entries[i] = rec.Entry()
		}
		if err := e.seedAttributes(ctx, records); err != nil {
			return err
		}
		return e.index.Seed(ctx, entries)
	})
}

// seedAttributes writes attributes only for players the cache does not know.
func (e *Engine) seedAttributes(ctx context.Context, records []models.DurablePlayerRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.PlayerID
	}
	cached, err := e.attrs.BatchGet(ctx, ids)
	if err != nil {
		return err
	}

	attrs := make([]models.PlayerAttributes, 0, len(records))
	for _, rec := range records {
		if _, ok := cached[rec.PlayerID]; !ok {
			attrs = append(attrs, rec.Attributes())
		}
	}
	return e.attrs.SetMany(ctx, attrs)
}
