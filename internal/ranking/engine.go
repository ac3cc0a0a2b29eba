// Package ranking orchestrates the score index, attribute cache, snapshot
// cache and durable store into one leaderboard.
package ranking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/IWhitebird/trophy-leaderboard/config"
	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/metrics"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

var (
	// ErrRankingUnavailable is returned only when every tier that could
	// answer a request has failed.
	ErrRankingUnavailable = errors.New("ranking unavailable")
	ErrInvalidPlayerID    = errors.New("invalid player id")
	ErrInvalidRange       = errors.New("invalid range")
)

// ScoreIndex is the fast ordered index. IncrementClamped must be atomic per
// player.
type ScoreIndex interface {
	IncrementClamped(ctx context.Context, playerID string, delta int64) (previous, next int64, err error)
	Seed(ctx context.Context, entries []models.RankEntry) error
	Score(ctx context.Context, playerID string) (score int64, found bool, err error)
	RankOf(ctx context.Context, playerID string) (score, rank int64, found bool, err error)
	CountGreater(ctx context.Context, score int64) (int64, error)
	Range(ctx context.Context, start, stop int64) ([]models.RankEntry, error)
	Cardinality(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

type AttributeCache interface {
	Get(ctx context.Context, playerID string) (models.PlayerAttributes, bool, error)
	BatchGet(ctx context.Context, playerIDs []string) (map[string]models.PlayerAttributes, error)
	Set(ctx context.Context, playerID string, patch *models.AttributesPatch) error
	SetMany(ctx context.Context, attrs []models.PlayerAttributes) error
}

type SnapshotStore interface {
	Load(ctx context.Context) (models.Snapshot, bool, error)
	Store(ctx context.Context, snap models.Snapshot) error
	Invalidate(ctx context.Context) error
}

type ScoreWriter interface {
	UpsertScore(ctx context.Context, w models.ScoreWrite) error
	UpsertScores(ctx context.Context, writes []models.ScoreWrite) error
}

type DurableStore interface {
	ScoreWriter
	FindByPlayerID(ctx context.Context, playerID string) (models.DurablePlayerRecord, error)
	FindByPlayerIDs(ctx context.Context, playerIDs []string) ([]models.DurablePlayerRecord, error)
	CountScoresGreaterThan(ctx context.Context, score int64) (int64, error)
	CountPlayers(ctx context.Context) (int64, error)
	FindTopByScore(ctx context.Context, offset, limit int64) ([]models.DurablePlayerRecord, error)
	FindTopEnriched(ctx context.Context, offset, limit int64) ([]models.EnrichedRecord, error)
}

type Engine struct {
	index     ScoreIndex
	attrs     AttributeCache
	snapshots SnapshotStore
	durable   DurableStore

	cfg    config.RankingConfig
	writer *writeThrough

	group singleflight.Group
	tasks sync.WaitGroup
	now   func() time.Time

	// repopulating is non-zero while the index is being refilled from the
	// durable store and holds only part of the players.
	repopulating atomic.Int32
}

func NewEngine(
	index ScoreIndex,
	attrs AttributeCache,
	snapshots SnapshotStore,
	durable DurableStore,
	cfg config.RankingConfig,
	wt config.WriteThroughConfig,
) *Engine {
	e := &Engine{
		index:     index,
		attrs:     attrs,
		snapshots: snapshots,
		durable:   durable,
		cfg:       cfg,
		now:       time.Now,
	}
	e.writer = newWriteThrough(durable, wt, cfg.DurableTimeout)
	return e
}

// Wait blocks until every background task started so far has finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

// Close waits for background tasks and flushes pending durable writes.
func (e *Engine) Close() {
	e.tasks.Wait()
	e.writer.Close()
}

// goBackground runs fn detached from the caller with its own timeout.
// Failures are logged and counted, never returned.
func (e *Engine) goBackground(task string, fn func(ctx context.Context) error) {
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()

		ctx, cancel := withTimeout(context.Background(), e.cfg.BackgroundTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.RecordBackgroundFailure(task)
			logging.Error("Background task failed", "task", task, "error", err)
		}
	}()
}

func (e *Engine) warming() bool {
	return e.repopulating.Load() > 0
}

func (e *Engine) indexContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, e.cfg.IndexTimeout)
}

func (e *Engine) durableContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, e.cfg.DurableTimeout)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func validatePlayerID(playerID string) error {
	if strings.TrimSpace(playerID) == "" {
		return ErrInvalidPlayerID
	}
	return nil
}
