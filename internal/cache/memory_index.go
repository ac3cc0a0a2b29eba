package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

type scoreKey struct {
	Score    int64
	PlayerID string
}

// compareScoreKeys orders by score descending, then player id ascending so
// equal scores still have a stable position.
func compareScoreKeys(a, b scoreKey) int {
	if c := compareScores(a, b); c != 0 {
		return c
	}
	return strings.Compare(a.PlayerID, b.PlayerID)
}

func compareScores(a, b scoreKey) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	default:
		return 0
	}
}

// MemoryIndex is an in-process score index for single-instance deployments
// and tests. Atomicity comes from its own mutex, so it must not be shared
// between engine processes.
type MemoryIndex struct {
	mu     sync.RWMutex
	scores map[string]int64
	list   *SkipList[scoreKey]
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		scores: make(map[string]int64),
		list:   NewSkipList[scoreKey](compareScoreKeys),
	}
}

func (m *MemoryIndex) IncrementClamped(_ context.Context, playerID string, delta int64) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, exists := m.scores[playerID]
	next := max(previous+delta, 0)

	if exists {
		m.list.Delete(scoreKey{Score: previous, PlayerID: playerID})
	}
	m.list.Insert(scoreKey{Score: next, PlayerID: playerID})
	m.scores[playerID] = next

	return previous, next, nil
}

// Seed adds entries whose player is not indexed yet. Existing scores win.
func (m *MemoryIndex) Seed(_ context.Context, entries []models.RankEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if _, exists := m.scores[e.PlayerID]; exists {
			continue
		}
		score := max(e.Score, 0)
		m.list.Insert(scoreKey{Score: score, PlayerID: e.PlayerID})
		m.scores[e.PlayerID] = score
	}
	return nil
}

func (m *MemoryIndex) Score(_ context.Context, playerID string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	score, exists := m.scores[playerID]
	return score, exists, nil
}

func (m *MemoryIndex) RankOf(_ context.Context, playerID string) (int64, int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	score, exists := m.scores[playerID]
	if !exists {
		return 0, 0, false, nil
	}
	greater := m.list.CountBefore(scoreKey{Score: score}, compareScores)
	return score, int64(greater) + 1, true, nil
}

func (m *MemoryIndex) CountGreater(_ context.Context, score int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(m.list.CountBefore(scoreKey{Score: score}, compareScores)), nil
}

// Range returns entries at zero-based positions start..stop inclusive, best
// score first.
func (m *MemoryIndex) Range(_ context.Context, start, stop int64) ([]models.RankEntry, error) {
	if start < 0 || stop < start {
		return []models.RankEntry{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	page := m.list.Range(int(start), int(stop-start+1))
	entries := make([]models.RankEntry, len(page))
	for i, e := range page {
		entries[i] = models.RankEntry{PlayerID: e.Key.PlayerID, Score: e.Key.Score}
	}
	return entries, nil
}

func (m *MemoryIndex) Cardinality(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(m.list.GetLength()), nil
}

func (m *MemoryIndex) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.list.Clear()
	m.scores = make(map[string]int64)
	return nil
}
