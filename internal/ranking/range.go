package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/metrics"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

// GetRange returns rows for the 1-based inclusive rank positions start..end.
// Spans longer than the configured maximum are truncated. Reads are served
// from the snapshot when it covers the range, then the index, then the
// durable store. enrich reads the durable join directly.
func (e *Engine) GetRange(ctx context.Context, start, end int64, enrich bool) (models.RangeResult, error) {
	defer metrics.ObserveOperation("get_range", time.Now())

	if start < 1 || end < start {
		return models.RangeResult{}, fmt.Errorf("%w: start=%d end=%d", ErrInvalidRange, start, end)
	}
	if maxRange := int64(e.cfg.MaxRange); maxRange > 0 && end-start+1 > maxRange {
		end = start + maxRange - 1
	}

	if enrich {
		return e.enrichedRange(ctx, start, end)
	}

	if result, ok := e.snapshotRange(ctx, start, end); ok {
		return result, nil
	}

	result, ok := e.indexRange(ctx, start, end)
	if ok {
		return result, nil
	}

	metrics.RecordFallback("get_range", string(models.SourceDurable))
	return e.durableRange(ctx, start, end)
}

func (e *Engine) snapshotRange(ctx context.Context, start, end int64) (models.RangeResult, bool) {
	sctx, cancel := e.indexContext(ctx)
	snap, found, err := e.snapshots.Load(sctx)
	cancel()
	if err != nil {
		logging.Error("Snapshot read failed", "error", err)
	}
	metrics.RecordSnapshotLookup(found)

	if !found {
		e.triggerRebuild()
		return models.RangeResult{}, false
	}

	size := int64(len(snap.Rows))
	if end > size && size != snap.Total {
		return models.RangeResult{}, false
	}

	rows := []models.LeaderboardRow{}
	if start <= size {
		rows = append(rows, snap.Rows[start-1:min(end, size)]...)
	}
	return models.RangeResult{Rows: rows, RangeTotal: snap.Total, Source: models.SourceSnapshot}, true
}

// indexRange reports false when the index failed, holds no players at all or
// is still being repopulated, so the caller should use the durable store.
func (e *Engine) indexRange(ctx context.Context, start, end int64) (models.RangeResult, bool) {
	if e.warming() {
		return models.RangeResult{}, false
	}

	ictx, cancel := e.indexContext(ctx)
	defer cancel()

	entries, err := e.index.Range(ictx, start-1, end-1)
	if err != nil {
		logging.Error("Index range read failed, falling back to durable store", "start", start, "end", end, "error", err)
		return models.RangeResult{}, false
	}

	total, err := e.index.Cardinality(ictx)
	if err != nil {
		logging.Error("Index cardinality read failed, falling back to durable store", "error", err)
		return models.RangeResult{}, false
	}
	if total == 0 {
		return models.RangeResult{}, false
	}
	if len(entries) == 0 {
		return models.RangeResult{Rows: []models.LeaderboardRow{}, RangeTotal: total, Source: models.SourceIndex}, true
	}

	firstRank := int64(1)
	if start > 1 {
		greater, err := e.index.CountGreater(ictx, entries[0].Score)
		if err != nil {
			logging.Error("Index count failed, falling back to durable store", "error", err)
			return models.RangeResult{}, false
		}
		firstRank = greater + 1
	}

	rows := e.composeRows(ctx, entries, start, firstRank)
	return models.RangeResult{Rows: rows, RangeTotal: total, Source: models.SourceIndex}, true
}

func (e *Engine) durableRange(ctx context.Context, start, end int64) (models.RangeResult, error) {
	dctx, cancel := e.durableContext(ctx)
	defer cancel()

	records, err := e.durable.FindTopByScore(dctx, start-1, end-start+1)
	if err != nil {
		return models.RangeResult{}, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}
	total, err := e.durable.CountPlayers(dctx)
	if err != nil {
		return models.RangeResult{}, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}

	e.triggerRepopulate()

	if len(records) == 0 {
		return models.RangeResult{Rows: []models.LeaderboardRow{}, RangeTotal: total, Source: models.SourceDurable}, nil
	}

	firstRank := int64(1)
	if start > 1 {
		greater, err := e.durable.CountScoresGreaterThan(dctx, records[0].Score)
		if err != nil {
			return models.RangeResult{}, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
		}
		firstRank = greater + 1
	}

	entries := make([]models.RankEntry, len(records))
	for i, rec := range records {
		entries[i] = rec.Entry()
	}
	ranks := competitionRanks(entries, start, firstRank)

	rows := make([]models.LeaderboardRow, len(records))
	for i, rec := range records {
		rows[i] = models.NewRow(ranks[i], entries[i], rec.Attributes())
	}
	return models.RangeResult{Rows: rows, RangeTotal: total, Source: models.SourceDurable}, nil
}

func (e *Engine) enrichedRange(ctx context.Context, start, end int64) (models.RangeResult, error) {
	dctx, cancel := e.durableContext(ctx)
	defer cancel()

	records, err := e.durable.FindTopEnriched(dctx, start-1, end-start+1)
	if err != nil {
		return models.RangeResult{}, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}
	total, err := e.durable.CountPlayers(dctx)
	if err != nil {
		return models.RangeResult{}, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}
	if len(records) == 0 {
		return models.RangeResult{Rows: []models.LeaderboardRow{}, RangeTotal: total, Source: models.SourceDurable}, nil
	}

	firstRank := int64(1)
	if start > 1 {
		greater, err := e.durable.CountScoresGreaterThan(dctx, records[0].Score)
		if err != nil {
			return models.RangeResult{}, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
		}
		firstRank = greater + 1
	}

	entries := make([]models.RankEntry, len(records))
	for i, rec := range records {
		entries[i] = rec.Entry()
	}
	ranks := competitionRanks(entries, start, firstRank)

	rows := make([]models.LeaderboardRow, len(records))
	for i, rec := range records {
		row := models.NewRow(ranks[i], entries[i], rec.Attributes())
		row.Clan = rec.Clan
		row.Stats = rec.Stats
		rows[i] = row
	}
	return models.RangeResult{Rows: rows, RangeTotal: total, Source: models.SourceDurable}, nil
}

// composeRows joins index entries with their attributes.
func (e *Engine) composeRows(ctx context.Context, entries []models.RankEntry, start, firstRank int64) []models.LeaderboardRow {
	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.PlayerID
	}
	attrs := e.resolveAttributes(ctx, ids)
	ranks := competitionRanks(entries, start, firstRank)

	rows := make([]models.LeaderboardRow, len(entries))
	for i, entry := range entries {
		rows[i] = models.NewRow(ranks[i], entry, attrs[entry.PlayerID])
	}
	return rows
}

// competitionRanks assigns 1,1,3 style ranks to entries sorted by score
// descending that start at position start. firstRank is the rank of the
// first entry, which may be lower than start when it ties rows on the
// previous page.
func competitionRanks(entries []models.RankEntry, start, firstRank int64) []int64 {
	ranks := make([]int64, len(entries))
	for i, entry := range entries {
		switch {
		case i == 0:
			ranks[i] = firstRank
		case entry.Score == entries[i-1].Score:
			ranks[i] = ranks[i-1]
		default:
			ranks[i] = start + int64(i)
		}
	}
	return ranks
}
