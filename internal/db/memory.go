package db

import (
	"context"
	"sort"
	"sync"

	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

type memoryPlayer struct {
	record models.DurablePlayerRecord
	clan   *models.ClanInfo
	stats  *models.PlayerStats
}

// MemoryRepository is a map-backed durable store with the same semantics as
// PostgresRepository, for local runs and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	players map[string]*memoryPlayer
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{players: make(map[string]*memoryPlayer)}
}

// Put stores rec as is, replacing any existing row.
func (r *MemoryRepository) Put(rec models.DurablePlayerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[rec.PlayerID]
	if !ok {
		p = &memoryPlayer{}
		r.players[rec.PlayerID] = p
	}
	p.record = rec
}

func (r *MemoryRepository) SetEnrichment(playerID string, clan *models.ClanInfo, stats *models.PlayerStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[playerID]; ok {
		p.clan = clan
		p.stats = stats
	}
}

func (r *MemoryRepository) FindByPlayerID(_ context.Context, playerID string) (models.DurablePlayerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.players[playerID]
	if !ok {
		return models.DurablePlayerRecord{}, models.ErrPlayerNotFound
	}
	return p.record, nil
}

func (r *MemoryRepository) FindByPlayerIDs(_ context.Context, playerIDs []string) ([]models.DurablePlayerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]models.DurablePlayerRecord, 0, len(playerIDs))
	for _, id := range playerIDs {
		if p, ok := r.players[id]; ok {
			records = append(records, p.record)
		}
	}
	return records, nil
}

func (r *MemoryRepository) CountScoresGreaterThan(_ context.Context, score int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, p := range r.players {
		if p.record.Score > score {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) CountPlayers(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.players)), nil
}

func (r *MemoryRepository) FindTopByScore(ctx context.Context, offset, limit int64) ([]models.DurablePlayerRecord, error) {
	enriched, err := r.FindTopEnriched(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	records := make([]models.DurablePlayerRecord, len(enriched))
	for i, e := range enriched {
		records[i] = e.DurablePlayerRecord
	}
	return records, nil
}

func (r *MemoryRepository) FindTopEnriched(_ context.Context, offset, limit int64) ([]models.EnrichedRecord, error) {
	r.mu.RLock()
	all := make([]models.EnrichedRecord, 0, len(r.players))
	for _, p := range r.players {
		all = append(all, models.EnrichedRecord{DurablePlayerRecord: p.record, Clan: p.clan, Stats: p.stats})
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].PlayerID < all[j].PlayerID
	})

	if offset < 0 || offset >= int64(len(all)) || limit <= 0 {
		return []models.EnrichedRecord{}, nil
	}
	end := min(offset+limit, int64(len(all)))
	return all[offset:end], nil
}

func (r *MemoryRepository) UpsertScore(_ context.Context, w models.ScoreWrite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.upsertLocked(w)
	return nil
}

func (r *MemoryRepository) UpsertScores(_ context.Context, writes []models.ScoreWrite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range writes {
		r.upsertLocked(w)
	}
	return nil
}

func (r *MemoryRepository) upsertLocked(w models.ScoreWrite) {
	p, ok := r.players[w.PlayerID]
	if !ok {
		p = &memoryPlayer{record: models.DurablePlayerRecord{PlayerID: w.PlayerID, Level: models.DefaultLevel}}
		r.players[w.PlayerID] = p
	} else if p.record.LastScoreUpdate.After(w.UpdatedAt) {
		return
	}

	attrs := w.Patch.Apply(models.PlayerAttributes{
		PlayerID:    p.record.PlayerID,
		DisplayName: p.record.DisplayName,
		AvatarRef:   p.record.AvatarRef,
		Level:       p.record.Level,
		Title:       p.record.Title,
	})

	p.record.Score = max(w.Score, 0)
	p.record.DisplayName = attrs.DisplayName
	p.record.AvatarRef = attrs.AvatarRef
	p.record.Level = attrs.Level
	p.record.Title = attrs.Title
	p.record.LastScoreUpdate = w.UpdatedAt
}
