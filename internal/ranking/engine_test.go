package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-contrib/cache/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IWhitebird/trophy-leaderboard/config"
	"github.com/IWhitebird/trophy-leaderboard/internal/cache"
	"github.com/IWhitebird/trophy-leaderboard/internal/db"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

var errDown = errors.New("connection refused")

// flakyIndex wraps a ScoreIndex and fails every call while down is set.
type flakyIndex struct {
	ScoreIndex
	down atomic.Bool
}

func (f *flakyIndex) IncrementClamped(ctx context.Context, playerID string, delta int64) (int64, int64, error) {
	if f.down.Load() {
		return 0, 0, errDown
	}
	return f.ScoreIndex.IncrementClamped(ctx, playerID, delta)
}

func (f *flakyIndex) RankOf(ctx context.Context, playerID string) (int64, int64, bool, error) {
	if f.down.Load() {
		return 0, 0, false, errDown
	}
	return f.ScoreIndex.RankOf(ctx, playerID)
}

func (f *flakyIndex) Score(ctx context.Context, playerID string) (int64, bool, error) {
	if f.down.Load() {
		return 0, false, errDown
	}
	return f.ScoreIndex.Score(ctx, playerID)
}

// Range also honours cancellation, like a network-backed index.
func (f *flakyIndex) Range(ctx context.Context, start, stop int64) ([]models.RankEntry, error) {
	if f.down.Load() {
		return nil, errDown
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.ScoreIndex.Range(ctx, start, stop)
}

func (f *flakyIndex) Cardinality(ctx context.Context) (int64, error) {
	if f.down.Load() {
		return 0, errDown
	}
	return f.ScoreIndex.Cardinality(ctx)
}

func (f *flakyIndex) Seed(ctx context.Context, entries []models.RankEntry) error {
	if f.down.Load() {
		return errDown
	}
	return f.ScoreIndex.Seed(ctx, entries)
}

// flakyDurable wraps a DurableStore and fails reads while down is set.
type flakyDurable struct {
	DurableStore
	down atomic.Bool
}

func (f *flakyDurable) FindByPlayerID(ctx context.Context, playerID string) (models.DurablePlayerRecord, error) {
	if f.down.Load() {
		return models.DurablePlayerRecord{}, errDown
	}
	return f.DurableStore.FindByPlayerID(ctx, playerID)
}

func (f *flakyDurable) FindTopByScore(ctx context.Context, offset, limit int64) ([]models.DurablePlayerRecord, error) {
	if f.down.Load() {
		return nil, errDown
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.DurableStore.FindTopByScore(ctx, offset, limit)
}

type fixture struct {
	engine    *Engine
	index     *flakyIndex
	snapshots *cache.SnapshotCache
	durable   *flakyDurable
	repo      *db.MemoryRepository
}

func testConfig() config.RankingConfig {
	return config.RankingConfig{
		InvalidationThreshold: 100,
		MaxRange:              500,
		SnapshotLimit:         500,
		SnapshotTTL:           30 * time.Second,
		AttributeTTL:          time.Hour,
		IndexTimeout:          time.Second,
		DurableTimeout:        time.Second,
		BackgroundTimeout:     5 * time.Second,
	}
}

func testWriteThroughConfig() config.WriteThroughConfig {
	return config.WriteThroughConfig{
		QueueSize:     1000,
		BatchSize:     50,
		FlushInterval: 10 * time.Millisecond,
		MaxAttempts:   3,
	}
}

func newFixture(t *testing.T, mutate ...func(*config.RankingConfig)) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	f := &fixture{
		index:     &flakyIndex{ScoreIndex: cache.NewMemoryIndex()},
		snapshots: cache.NewSnapshotCache(persistence.NewInMemoryStore(time.Minute), "test"),
		repo:      db.NewMemoryRepository(),
	}
	f.durable = &flakyDurable{DurableStore: f.repo}
	attrs := cache.NewStoreAttributeCache(persistence.NewInMemoryStore(time.Minute), "test", time.Hour)

	f.engine = NewEngine(f.index, attrs, f.snapshots, f.durable, cfg, testWriteThroughConfig())
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) apply(t *testing.T, playerID string, delta int64) models.ScoreUpdate {
	t.Helper()
	update, err := f.engine.ApplyScoreDelta(context.Background(), playerID, delta, nil)
	require.NoError(t, err)
	return update
}

func (f *fixture) putDurable(playerID string, score int64, name string) {
	f.repo.Put(models.DurablePlayerRecord{
		PlayerID:        playerID,
		Score:           score,
		DisplayName:     name,
		Level:           4,
		LastScoreUpdate: time.Now(),
	})
}

func TestApplyScoreDelta_Clamps(t *testing.T) {
	f := newFixture(t)

	update := f.apply(t, "p1", 500)
	assert.Equal(t, models.ScoreUpdate{PlayerID: "p1", PreviousScore: 0, NewScore: 500}, update)

	update = f.apply(t, "p1", -700)
	assert.Equal(t, int64(500), update.PreviousScore)
	assert.Equal(t, int64(0), update.NewScore)

	rank, found, err := f.engine.GetRank(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(0), rank.Score)
	assert.Equal(t, int64(1), rank.Rank)
}

func TestApplyScoreDelta_ConcurrentDeltasAreAtomic(t *testing.T) {
	f := newFixture(t)
	const workers = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.ApplyScoreDelta(context.Background(), "p1", 1, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rank, found, err := f.engine.GetRank(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(workers), rank.Score)
}

func TestApplyScoreDelta_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ApplyScoreDelta(context.Background(), "  ", 10, nil)
	assert.ErrorIs(t, err, ErrInvalidPlayerID)

	f.index.down.Store(true)
	_, err = f.engine.ApplyScoreDelta(context.Background(), "p1", 10, nil)
	assert.ErrorIs(t, err, ErrRankingUnavailable)
}

func TestApplyScoreDelta_WritesThroughToDurable(t *testing.T) {
	f := newFixture(t)
	name := "Knight"

	f.apply(t, "p1", 300)
	_, err := f.engine.ApplyScoreDelta(context.Background(), "p1", -50, &models.AttributesPatch{DisplayName: &name})
	require.NoError(t, err)
	f.engine.Close()

	rec, err := f.repo.FindByPlayerID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), rec.Score)
	assert.Equal(t, "Knight", rec.DisplayName)
}

func TestApplyScoreDelta_StartsFromDurableScore(t *testing.T) {
	f := newFixture(t)
	f.putDurable("a", 1000, "Alpha")

	update := f.apply(t, "a", 10)
	assert.Equal(t, int64(1000), update.PreviousScore)
	assert.Equal(t, int64(1010), update.NewScore)

	f.engine.Close()
	rec, err := f.repo.FindByPlayerID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1010), rec.Score)
	assert.Equal(t, "Alpha", rec.DisplayName)
}

func TestApplyScoreDelta_ColdIndexIsRefilledWhole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putDurable("a", 300, "Alpha")
	f.putDurable("b", 200, "Bravo")

	f.apply(t, "b", 10)
	f.engine.Wait()

	card, err := f.index.Cardinality(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)

	rank, found, err := f.engine.GetRank(ctx, "b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.SourceIndex, rank.Source)
	assert.Equal(t, int64(2), rank.Rank)
	assert.Equal(t, int64(210), rank.Score)
}

func TestApplyScoreDelta_DurableDownForUnindexedPlayer(t *testing.T) {
	f := newFixture(t)
	f.apply(t, "known", 5)
	f.durable.down.Store(true)

	_, err := f.engine.ApplyScoreDelta(context.Background(), "other", 10, nil)
	assert.ErrorIs(t, err, ErrRankingUnavailable)

	// Indexed players do not need the durable store.
	assert.Equal(t, int64(15), f.apply(t, "known", 10).NewScore)
}

func TestApplyScoreDelta_InvalidatesSnapshotOnLargeDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.apply(t, "a", 10)
	require.True(t, f.engine.RebuildSnapshot(ctx, 10))

	f.apply(t, "a", 5)
	f.engine.Wait()
	_, found, err := f.snapshots.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found, "small delta keeps the snapshot")

	f.apply(t, "a", -100)
	f.engine.Wait()
	_, found, err = f.snapshots.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found, "delta at the threshold drops the snapshot")
}

func TestGetRank_TiesAndAttributes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	name := "Alpha"

	_, err := f.engine.ApplyScoreDelta(ctx, "a", 100, &models.AttributesPatch{DisplayName: &name})
	require.NoError(t, err)
	f.apply(t, "b", 100)
	f.apply(t, "c", 90)

	for id, want := range map[string]int64{"a": 1, "b": 1, "c": 3} {
		rank, found, err := f.engine.GetRank(ctx, id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, rank.Rank, id)
		assert.Equal(t, models.SourceIndex, rank.Source)
	}

	rank, _, err := f.engine.GetRank(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", rank.Attributes.DisplayName)
	assert.Equal(t, models.DefaultLevel, rank.Attributes.Level)

	rank, _, err = f.engine.GetRank(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultAttributes("c"), rank.Attributes)
}

func TestGetRank_NotFound(t *testing.T) {
	f := newFixture(t)

	_, found, err := f.engine.GetRank(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetRank_FallsBackToDurableAndBackfills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putDurable("a", 300, "Alpha")
	f.putDurable("b", 200, "Bravo")

	rank, found, err := f.engine.GetRank(ctx, "b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.SourceDurable, rank.Source)
	assert.Equal(t, int64(2), rank.Rank)
	assert.Equal(t, "Bravo", rank.Attributes.DisplayName)

	f.engine.Wait()

	rank, found, err = f.engine.GetRank(ctx, "b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.SourceIndex, rank.Source)
	assert.Equal(t, int64(200), rank.Score)
	assert.Equal(t, "Bravo", rank.Attributes.DisplayName)
}

func TestGetRank_ColdIndexIsRefilledBeforeRanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putDurable("a", 300, "Alpha")
	f.putDurable("b", 200, "Bravo")
	f.putDurable("c", 100, "Charlie")

	rank, found, err := f.engine.GetRank(ctx, "c")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.SourceDurable, rank.Source)
	assert.Equal(t, int64(3), rank.Rank)

	f.engine.Wait()

	result, err := f.engine.GetRange(ctx, 1, 3, false)
	require.NoError(t, err)
	assert.Equal(t, models.SourceIndex, result.Source)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{result.Rows[0].PlayerID, result.Rows[1].PlayerID, result.Rows[2].PlayerID})
	assert.Equal(t, []int64{1, 2, 3}, rowRanks(result.Rows))
	assert.Equal(t, int64(3), result.RangeTotal)

	rank, found, err = f.engine.GetRank(ctx, "c")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.SourceIndex, rank.Source)
	assert.Equal(t, int64(3), rank.Rank)
}

func TestGetRank_PartialIndexWhileRepopulating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putDurable("a", 300, "Alpha")
	f.putDurable("b", 200, "Bravo")
	f.putDurable("c", 100, "Charlie")
	require.NoError(t, f.index.Seed(ctx, []models.RankEntry{{PlayerID: "c", Score: 100}, {PlayerID: "z", Score: 50}}))

	f.engine.repopulating.Add(1)

	rank, found, err := f.engine.GetRank(ctx, "c")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.SourceDurable, rank.Source)
	assert.Equal(t, int64(3), rank.Rank)

	// Not written through yet, so only the index has it.
	rank, found, err = f.engine.GetRank(ctx, "z")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.SourceIndex, rank.Source)

	assert.False(t, f.engine.RebuildSnapshot(ctx, 0))

	result, err := f.engine.GetRange(ctx, 1, 3, false)
	require.NoError(t, err)
	assert.Equal(t, models.SourceDurable, result.Source)
	assert.Equal(t, []int64{1, 2, 3}, rowRanks(result.Rows))

	f.engine.repopulating.Add(-1)
	f.engine.Wait()

	card, err := f.index.Cardinality(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), card)
}

func TestGetRank_AllTiersDown(t *testing.T) {
	f := newFixture(t)
	f.index.down.Store(true)
	f.durable.down.Store(true)

	_, _, err := f.engine.GetRank(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrRankingUnavailable)

	_, err = f.engine.GetRange(context.Background(), 1, 10, false)
	assert.ErrorIs(t, err, ErrRankingUnavailable)
}

func TestGetRange_CompetitionRanks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, "a", 50)
	f.apply(t, "b", 50)
	f.apply(t, "c", 20)

	result, err := f.engine.GetRange(ctx, 1, 3, false)
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, []int64{1, 1, 3}, rowRanks(result.Rows))
	assert.Equal(t, int64(3), result.RangeTotal)
}

func TestGetRange_TieAcrossPageBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for id, score := range map[string]int64{"a": 100, "b": 90, "c": 90, "d": 90, "e": 80} {
		f.apply(t, id, score)
	}

	result, err := f.engine.GetRange(ctx, 3, 5, false)
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, []int64{2, 2, 5}, rowRanks(result.Rows))
	assert.Equal(t, []int64{90, 90, 80}, rowScores(result.Rows))
}

func TestGetRange_ValidationAndCap(t *testing.T) {
	f := newFixture(t, func(cfg *config.RankingConfig) { cfg.MaxRange = 2 })
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		f.apply(t, fmt.Sprintf("p%d", i), int64(i))
	}

	_, err := f.engine.GetRange(ctx, 0, 3, false)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = f.engine.GetRange(ctx, 4, 3, false)
	assert.ErrorIs(t, err, ErrInvalidRange)

	result, err := f.engine.GetRange(ctx, 1, 10, false)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)

	result, err = f.engine.GetRange(ctx, 50, 51, false)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Equal(t, int64(5), result.RangeTotal)
}

func TestGetRange_OrderingIsConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		f.apply(t, fmt.Sprintf("p%03d", i), int64(i%17)*10)
	}

	for start := int64(1); start <= 200; start += 37 {
		result, err := f.engine.GetRange(ctx, start, start+36, false)
		require.NoError(t, err)
		for i := 1; i < len(result.Rows); i++ {
			prev, cur := result.Rows[i-1], result.Rows[i]
			assert.GreaterOrEqual(t, prev.Score, cur.Score)
			assert.LessOrEqual(t, prev.Rank, cur.Rank)
			if prev.Score == cur.Score {
				assert.Equal(t, prev.Rank, cur.Rank)
			}
		}
		for _, row := range result.Rows {
			rank, _, err := f.engine.GetRank(ctx, row.PlayerID)
			require.NoError(t, err)
			assert.Equal(t, rank.Rank, row.Rank, row.PlayerID)
		}
	}
}

func TestRebuildSnapshot_MatchesIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 600; i++ {
		f.apply(t, fmt.Sprintf("p%03d", i), int64((i*7919)%1000))
	}
	// Large deltas invalidate the snapshot in the background
	f.engine.Wait()

	require.True(t, f.engine.RebuildSnapshot(ctx, 500))

	direct, ok := f.engine.indexRange(ctx, 1, 500)
	require.True(t, ok)

	result, err := f.engine.GetRange(ctx, 1, 500, false)
	require.NoError(t, err)
	assert.Equal(t, models.SourceSnapshot, result.Source)
	assert.Equal(t, direct.Rows, result.Rows)
	assert.Equal(t, int64(600), result.RangeTotal)

	// Past the snapshot the index answers
	tail, err := f.engine.GetRange(ctx, 501, 600, false)
	require.NoError(t, err)
	assert.Equal(t, models.SourceIndex, tail.Source)
	assert.Len(t, tail.Rows, 100)
}

func TestRebuildSnapshot_EmptyIndex(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.engine.RebuildSnapshot(context.Background(), 0))
}

func TestRebuildSnapshot_OutlivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.index.Seed(context.Background(), []models.RankEntry{{PlayerID: "a", Score: 10}}))
	f.putDurable("b", 40, "Bravo")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := f.engine.Repopulate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.True(t, f.engine.RebuildSnapshot(ctx, 0))

	snap, found, err := f.snapshots.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, snap.Rows, 2)
}

func TestGetRange_SnapshotMissRebuildsInBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, "a", 10)
	f.apply(t, "b", 20)

	result, err := f.engine.GetRange(ctx, 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, models.SourceIndex, result.Source)

	f.engine.Wait()

	result, err = f.engine.GetRange(ctx, 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, models.SourceSnapshot, result.Source)
	assert.Equal(t, []string{"b", "a"}, []string{result.Rows[0].PlayerID, result.Rows[1].PlayerID})
}

func TestGetRange_ColdIndexFallsBackAndRepopulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putDurable("a", 50, "Alpha")
	f.putDurable("b", 50, "Bravo")
	f.putDurable("c", 20, "Charlie")

	result, err := f.engine.GetRange(ctx, 1, 3, false)
	require.NoError(t, err)
	assert.Equal(t, models.SourceDurable, result.Source)
	assert.Equal(t, []int64{1, 1, 3}, rowRanks(result.Rows))
	assert.Equal(t, "Alpha", result.Rows[0].DisplayName)
	assert.Equal(t, int64(3), result.RangeTotal)

	f.engine.Wait()

	card, err := f.index.Cardinality(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), card)

	require.NoError(t, f.engine.InvalidateSnapshot(ctx))
	result, err = f.engine.GetRange(ctx, 1, 3, false)
	require.NoError(t, err)
	assert.Equal(t, models.SourceIndex, result.Source)
	assert.Equal(t, "Charlie", result.Rows[2].DisplayName)
}

func TestGetRange_Enriched(t *testing.T) {
	f := newFixture(t)
	f.putDurable("a", 90, "Alpha")
	f.putDurable("b", 80, "Bravo")
	f.repo.SetEnrichment("a", &models.ClanInfo{ClanID: "c1", Name: "Wolves", Tag: "WLF"}, &models.PlayerStats{Wins: 3})

	result, err := f.engine.GetRange(context.Background(), 1, 2, true)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, models.SourceDurable, result.Source)
	require.NotNil(t, result.Rows[0].Clan)
	assert.Equal(t, "WLF", result.Rows[0].Clan.Tag)
	assert.Equal(t, 3, result.Rows[0].Stats.Wins)
	assert.Nil(t, result.Rows[1].Clan)

	// Enriched reads never populate the snapshot
	_, found, err := f.snapshots.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMonitorAndRebuild(t *testing.T) {
	f := newFixture(t, func(cfg *config.RankingConfig) { cfg.SnapshotLimit = 10 })
	ctx := context.Background()

	assert.Equal(t, models.MonitorResult{Rebuilt: false, Reason: ReasonIndexEmpty}, f.engine.MonitorAndRebuild(ctx))

	for i := 0; i < 20; i++ {
		f.putDurable(fmt.Sprintf("p%02d", i), int64(i), "")
	}
	assert.Equal(t, models.MonitorResult{Rebuilt: true, Reason: ReasonIndexEmpty}, f.engine.MonitorAndRebuild(ctx))
	assert.Equal(t, models.MonitorResult{Rebuilt: false, Reason: ReasonHealthy}, f.engine.MonitorAndRebuild(ctx))

	require.NoError(t, f.engine.InvalidateSnapshot(ctx))
	assert.Equal(t, models.MonitorResult{Rebuilt: true, Reason: ReasonSnapshotMissing}, f.engine.MonitorAndRebuild(ctx))

	require.NoError(t, f.snapshots.Store(ctx, models.Snapshot{
		Rows:       []models.LeaderboardRow{{Rank: 1, PlayerID: "p19", Score: 19}},
		BuiltAt:    time.Now(),
		TTLSeconds: 30,
		Total:      20,
	}))
	assert.Equal(t, models.MonitorResult{Rebuilt: true, Reason: ReasonSnapshotUndersized}, f.engine.MonitorAndRebuild(ctx))

	f.index.down.Store(true)
	assert.Equal(t, models.MonitorResult{Rebuilt: false, Reason: ReasonIndexUnavailable}, f.engine.MonitorAndRebuild(ctx))
}

func TestMonitorAndRebuild_RefillsIncompleteIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putDurable("a", 300, "Alpha")
	f.putDurable("b", 200, "Bravo")
	f.putDurable("c", 100, "Charlie")
	require.NoError(t, f.index.Seed(ctx, []models.RankEntry{{PlayerID: "c", Score: 100}}))

	assert.Equal(t, models.MonitorResult{Rebuilt: true, Reason: ReasonIndexIncomplete}, f.engine.MonitorAndRebuild(ctx))

	card, err := f.index.Cardinality(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), card)
	assert.Equal(t, models.MonitorResult{Rebuilt: false, Reason: ReasonHealthy}, f.engine.MonitorAndRebuild(ctx))
}

func TestResetIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.apply(t, "a", 10)
	require.True(t, f.engine.RebuildSnapshot(ctx, 0))

	require.NoError(t, f.engine.ResetIndex(ctx))

	card, err := f.index.Cardinality(ctx)
	require.NoError(t, err)
	assert.Zero(t, card)
	_, found, err := f.snapshots.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCompetitionRanks(t *testing.T) {
	entries := []models.RankEntry{{Score: 90}, {Score: 90}, {Score: 80}, {Score: 80}, {Score: 70}}

	assert.Equal(t, []int64{1, 1, 3, 3, 5}, competitionRanks(entries, 1, 1))
	assert.Equal(t, []int64{2, 2, 6, 6, 8}, competitionRanks(entries, 4, 2))
	assert.Empty(t, competitionRanks(nil, 1, 1))
}

func rowRanks(rows []models.LeaderboardRow) []int64 {
	ranks := make([]int64, len(rows))
	for i, r := range rows {
		ranks[i] = r.Rank
	}
	return ranks
}

func rowScores(rows []models.LeaderboardRow) []int64 {
	scores := make([]int64, len(rows))
	for i, r := range rows {
		scores[i] = r.Score
	}
	return scores
}
