package ranking

import (
	"context"

	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

const (
	ReasonIndexUnavailable   = "index unavailable"
	ReasonIndexEmpty         = "index empty"
	ReasonIndexIncomplete    = "index incomplete"
	ReasonSnapshotMissing    = "snapshot missing"
	ReasonSnapshotUndersized = "snapshot undersized"
	ReasonHealthy            = "healthy"
)

// MonitorAndRebuild checks the index and snapshot and rebuilds the snapshot
// when the index was empty or missing durable players, the snapshot is
// missing, or it holds fewer than 90% of min(limit, index size) rows.
func (e *Engine) MonitorAndRebuild(ctx context.Context) models.MonitorResult {
	ictx, cancel := e.indexContext(ctx)
	total, err := e.index.Cardinality(ictx)
	cancel()
	if err != nil {
		logging.Error("Monitor could not read index", "error", err)
		return models.MonitorResult{Rebuilt: false, Reason: ReasonIndexUnavailable}
	}

	if total == 0 {
		if _, err := e.Repopulate(ctx); err != nil {
			logging.Error("Monitor could not repopulate index", "error", err)
			return models.MonitorResult{Rebuilt: false, Reason: ReasonIndexEmpty}
		}
		return models.MonitorResult{Rebuilt: e.RebuildSnapshot(ctx, 0), Reason: ReasonIndexEmpty}
	}

	// New players reach the index before the durable store, so fewer
	// players in the index means it lost some.
	dctx, cancel := e.durableContext(ctx)
	players, err := e.durable.CountPlayers(dctx)
	cancel()
	if err != nil {
		logging.Error("Monitor could not count durable players", "error", err)
	} else if players > total {
		if _, err := e.Repopulate(ctx); err != nil {
			logging.Error("Monitor could not repopulate index", "error", err)
			return models.MonitorResult{Rebuilt: false, Reason: ReasonIndexIncomplete}
		}
		return models.MonitorResult{Rebuilt: e.RebuildSnapshot(ctx, 0), Reason: ReasonIndexIncomplete}
	}

	sctx, cancel := e.indexContext(ctx)
	snap, found, err := e.snapshots.Load(sctx)
	cancel()
	if err != nil || !found {
		return models.MonitorResult{Rebuilt: e.RebuildSnapshot(ctx, 0), Reason: ReasonSnapshotMissing}
	}

	expected := min(int64(e.cfg.SnapshotLimit), total)
	if int64(len(snap.Rows))*10 < expected*9 {
		return models.MonitorResult{Rebuilt: e.RebuildSnapshot(ctx, 0), Reason: ReasonSnapshotUndersized}
	}

	return models.MonitorResult{Rebuilt: false, Reason: ReasonHealthy}
}
