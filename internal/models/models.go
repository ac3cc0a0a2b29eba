package models

import (
	"errors"
	"time"
)

// Defaults applied when a player's display attributes are unknown.
const (
	DefaultDisplayName = "Unknown"
	DefaultAvatarRef   = "avatar:default"
	DefaultLevel       = 1
	DefaultTitle       = ""
)

var ErrPlayerNotFound = errors.New("player not found")

type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// RankEntry is one member of the score index.
type RankEntry struct {
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
}

// PlayerAttributes are the denormalized display fields shown next to a score.
type PlayerAttributes struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref"`
	Level       int    `json:"level"`
	Title       string `json:"title"`
}

// DefaultAttributes returns the resolved "missing" state for a player.
func DefaultAttributes(playerID string) PlayerAttributes {
	return PlayerAttributes{
		PlayerID:    playerID,
		DisplayName: DefaultDisplayName,
		AvatarRef:   DefaultAvatarRef,
		Level:       DefaultLevel,
		Title:       DefaultTitle,
	}
}

// WithDefaults fills every empty field from DefaultAttributes.
func (a PlayerAttributes) WithDefaults() PlayerAttributes {
	d := DefaultAttributes(a.PlayerID)
	if a.DisplayName == "" {
		a.DisplayName = d.DisplayName
	}
	if a.AvatarRef == "" {
		a.AvatarRef = d.AvatarRef
	}
	if a.Level <= 0 {
		a.Level = d.Level
	}
	return a
}

// AttributesPatch carries a partial attribute update. Nil fields are left
// unchanged by every writer.
type AttributesPatch struct {
	DisplayName *string `json:"display_name,omitempty"`
	AvatarRef   *string `json:"avatar_ref,omitempty"`
	Level       *int    `json:"level,omitempty"`
	Title       *string `json:"title,omitempty"`
}

func (p *AttributesPatch) IsEmpty() bool {
	return p == nil || (p.DisplayName == nil && p.AvatarRef == nil && p.Level == nil && p.Title == nil)
}

// Apply returns attrs with the patch's non-nil fields written over it.
func (p *AttributesPatch) Apply(attrs PlayerAttributes) PlayerAttributes {
	if p == nil {
		return attrs
	}
	if p.DisplayName != nil {
		attrs.DisplayName = *p.DisplayName
	}
	if p.AvatarRef != nil {
		attrs.AvatarRef = *p.AvatarRef
	}
	if p.Level != nil {
		attrs.Level = *p.Level
	}
	if p.Title != nil {
		attrs.Title = *p.Title
	}
	return attrs
}

// PatchFromAttributes builds a patch that sets every field of attrs.
func PatchFromAttributes(attrs PlayerAttributes) *AttributesPatch {
	return &AttributesPatch{
		DisplayName: &attrs.DisplayName,
		AvatarRef:   &attrs.AvatarRef,
		Level:       &attrs.Level,
		Title:       &attrs.Title,
	}
}

// LeaderboardRow is the read model composed at query time.
type LeaderboardRow struct {
	Rank        int64  `json:"rank"`
	PlayerID    string `json:"player_id"`
	Score       int64  `json:"score"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref"`
	Level       int    `json:"level"`
	Title       string `json:"title"`

	Clan  *ClanInfo    `json:"clan,omitempty"`
	Stats *PlayerStats `json:"stats,omitempty"`
}

// NewRow joins an index entry with its attributes at the given rank.
func NewRow(rank int64, entry RankEntry, attrs PlayerAttributes) LeaderboardRow {
	return LeaderboardRow{
		Rank:        rank,
		PlayerID:    entry.PlayerID,
		Score:       entry.Score,
		DisplayName: attrs.DisplayName,
		AvatarRef:   attrs.AvatarRef,
		Level:       attrs.Level,
		Title:       attrs.Title,
	}
}

type ClanInfo struct {
	ClanID string `json:"clan_id"`
	Name   string `json:"name"`
	Tag    string `json:"tag"`
}

type PlayerStats struct {
	Wins         int   `json:"wins"`
	Losses       int   `json:"losses"`
	BestTrophies int64 `json:"best_trophies"`
}

// Snapshot is a precomputed top-N page. It is replaced wholesale, never patched.
type Snapshot struct {
	Rows       []LeaderboardRow `json:"rows"`
	BuiltAt    time.Time        `json:"built_at"`
	TTLSeconds int64            `json:"ttl_seconds"`
	Total      int64            `json:"total"`
}

// Expired reports whether the snapshot is past its TTL at now.
func (s Snapshot) Expired(now time.Time) bool {
	return now.After(s.BuiltAt.Add(time.Duration(s.TTLSeconds) * time.Second))
}

// DurablePlayerRecord is the system-of-record row for a player.
type DurablePlayerRecord struct {
	PlayerID        string
	Score           int64
	DisplayName     string
	AvatarRef       string
	Level           int
	Title           string
	LastScoreUpdate time.Time
}

func (r DurablePlayerRecord) Entry() RankEntry {
	return RankEntry{PlayerID: r.PlayerID, Score: r.Score}
}

func (r DurablePlayerRecord) Attributes() PlayerAttributes {
	return PlayerAttributes{
		PlayerID:    r.PlayerID,
		DisplayName: r.DisplayName,
		AvatarRef:   r.AvatarRef,
		Level:       r.Level,
		Title:       r.Title,
	}.WithDefaults()
}

// EnrichedRecord is a durable record joined with its sub-entities.
type EnrichedRecord struct {
	DurablePlayerRecord
	Clan  *ClanInfo
	Stats *PlayerStats
}

// ScoreWrite is one write-through job for the durable store.
type ScoreWrite struct {
	PlayerID  string
	Score     int64
	Patch     *AttributesPatch
	UpdatedAt time.Time
}

// ScoreUpdate is the result of applying a delta.
type ScoreUpdate struct {
	PlayerID      string `json:"player_id"`
	PreviousScore int64  `json:"previous_score"`
	NewScore      int64  `json:"new_score"`
}

// Source names the tier that answered a read.
type Source string

const (
	SourceSnapshot Source = "snapshot"
	SourceIndex    Source = "index"
	SourceDurable  Source = "durable"
)

type PlayerRank struct {
	Rank       int64            `json:"rank"`
	Score      int64            `json:"score"`
	Attributes PlayerAttributes `json:"attributes"`
	Source     Source           `json:"source"`
}

type RangeResult struct {
	Rows       []LeaderboardRow `json:"rows"`
	RangeTotal int64            `json:"range_total"`
	Source     Source           `json:"source"`
}

type MonitorResult struct {
	Rebuilt bool   `json:"rebuilt"`
	Reason  string `json:"reason"`
}

// ScoreRequest is the body of a score submission.
type ScoreRequest struct {
	PlayerID   string           `json:"player_id" binding:"required"`
	Delta      int64            `json:"delta"`
	Attributes *AttributesPatch `json:"attributes,omitempty"`
}

// ScoreEvent is a score delta carried over Kafka, keyed by player id.
type ScoreEvent struct {
	EventID    string           `json:"event_id"`
	PlayerID   string           `json:"player_id"`
	Delta      int64            `json:"delta"`
	Attributes *AttributesPatch `json:"attributes,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ErrorResponse is returned by every failing API call.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AcceptedResponse acknowledges a score event queued for ingestion.
type AcceptedResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// TopPlayersResponse is one page of the leaderboard.
type TopPlayersResponse struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	RangeResult
}

type RebuildResponse struct {
	Rebuilt bool `json:"rebuilt"`
	Limit   int  `json:"limit"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
