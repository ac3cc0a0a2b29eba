package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/IWhitebird/trophy-leaderboard/config"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

//go:embed sql/init.sql
var initSQL string

const playerColumns = `player_id, trophies, display_name, avatar_ref, level, title, last_score_update`

// upsertScoreSQL writes the newest score and any patched attribute fields.
// Rows carrying an older last_score_update than the stored one are ignored,
// so a late retry never rolls a player back.
const upsertScoreSQL = `
INSERT INTO players (player_id, trophies, display_name, avatar_ref, level, title, last_score_update)
VALUES ($1, $2, COALESCE($3::text, ''), COALESCE($4::text, ''), COALESCE($5::integer, 1), COALESCE($6::text, ''), $7)
ON CONFLICT (player_id) DO UPDATE SET
    trophies = EXCLUDED.trophies,
    display_name = COALESCE($3::text, players.display_name),
    avatar_ref = COALESCE($4::text, players.avatar_ref),
    level = COALESCE($5::integer, players.level),
    title = COALESCE($6::text, players.title),
    last_score_update = EXCLUDED.last_score_update
WHERE players.last_score_update <= EXCLUDED.last_score_update
`

type PostgresRepository struct {
	db *sql.DB
}

func CreatePool(cfg *config.AppConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

func NewPostgresRepository(db *sql.DB) (*PostgresRepository, error) {
	if _, err := db.Exec(initSQL); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) FindByPlayerID(ctx context.Context, playerID string) (models.DurablePlayerRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE player_id = $1`, playerID)

	rec, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DurablePlayerRecord{}, models.ErrPlayerNotFound
	}
	if err != nil {
		return models.DurablePlayerRecord{}, fmt.Errorf("find player: %w", err)
	}
	return rec, nil
}

// FindByPlayerIDs returns the rows that exist among playerIDs, in no
// particular order.
func (r *PostgresRepository) FindByPlayerIDs(ctx context.Context, playerIDs []string) ([]models.DurablePlayerRecord, error) {
	if len(playerIDs) == 0 {
		return []models.DurablePlayerRecord{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+playerColumns+` FROM players WHERE player_id = ANY($1)`, pq.Array(playerIDs))
	if err != nil {
		return nil, fmt.Errorf("find players: %w", err)
	}
	defer rows.Close()

	records := make([]models.DurablePlayerRecord, 0, len(playerIDs))
	for rows.Next() {
		rec, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("find players: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find players: %w", err)
	}

	return records, nil
}

func (r *PostgresRepository) CountScoresGreaterThan(ctx context.Context, score int64) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players WHERE trophies > $1`, score).Scan(&count); err != nil {
		return 0, fmt.Errorf("count greater: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) CountPlayers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return count, nil
}

// FindTopByScore returns players ordered by trophies descending, skipping
// offset rows.
func (r *PostgresRepository) FindTopByScore(ctx context.Context, offset, limit int64) ([]models.DurablePlayerRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+playerColumns+`
FROM players
ORDER BY trophies DESC, player_id ASC
OFFSET $1 LIMIT $2
`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("find top: %w", err)
	}
	defer rows.Close()

	records := make([]models.DurablePlayerRecord, 0, limit)
	for rows.Next() {
		rec, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("find top: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find top: %w", err)
	}

	return records, nil
}

// FindTopEnriched is FindTopByScore joined with clan and stats rows.
func (r *PostgresRepository) FindTopEnriched(ctx context.Context, offset, limit int64) ([]models.EnrichedRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT p.player_id, p.trophies, p.display_name, p.avatar_ref, p.level, p.title, p.last_score_update,
       c.clan_id, c.name, c.tag,
       s.wins, s.losses, s.best_trophies
FROM players p
LEFT JOIN clans c ON c.clan_id = p.clan_id
LEFT JOIN player_stats s ON s.player_id = p.player_id
ORDER BY p.trophies DESC, p.player_id ASC
OFFSET $1 LIMIT $2
`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("find top enriched: %w", err)
	}
	defer rows.Close()

	records := make([]models.EnrichedRecord, 0, limit)
	for rows.Next() {
		var (
			rec                       models.EnrichedRecord
			clanID, clanName, clanTag sql.NullString
			wins, losses, best        sql.NullInt64
		)
		if err := rows.Scan(
			&rec.PlayerID, &rec.Score, &rec.DisplayName, &rec.AvatarRef, &rec.Level, &rec.Title, &rec.LastScoreUpdate,
			&clanID, &clanName, &clanTag,
			&wins, &losses, &best,
		); err != nil {
			return nil, fmt.Errorf("find top enriched: %w", err)
		}
		if clanID.Valid {
			rec.Clan = &models.ClanInfo{ClanID: clanID.String, Name: clanName.String, Tag: clanTag.String}
		}
		if wins.Valid {
			rec.Stats = &models.PlayerStats{Wins: int(wins.Int64), Losses: int(losses.Int64), BestTrophies: best.Int64}
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find top enriched: %w", err)
	}

	return records, nil
}

func (r *PostgresRepository) UpsertScore(ctx context.Context, w models.ScoreWrite) error {
	_, err := r.db.ExecContext(ctx, upsertScoreSQL, upsertArgs(w)...)
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

// UpsertScores writes a batch in one transaction.
func (r *PostgresRepository) UpsertScores(ctx context.Context, writes []models.ScoreWrite) (err error) {
	if len(writes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert scores: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertScoreSQL)
	if err != nil {
		return fmt.Errorf("upsert scores: %w", err)
	}
	defer stmt.Close()

	for _, w := range writes {
		if _, err = stmt.ExecContext(ctx, upsertArgs(w)...); err != nil {
			return fmt.Errorf("upsert scores: player %s: %w", w.PlayerID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("upsert scores: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (models.DurablePlayerRecord, error) {
	var rec models.DurablePlayerRecord
	err := row.Scan(&rec.PlayerID, &rec.Score, &rec.DisplayName, &rec.AvatarRef, &rec.Level, &rec.Title, &rec.LastScoreUpdate)
	return rec, err
}

func upsertArgs(w models.ScoreWrite) []any {
	var displayName, avatarRef, level, title any
	if p := w.Patch; p != nil {
		if p.DisplayName != nil {
			displayName = *p.DisplayName
		}
		if p.AvatarRef != nil {
			avatarRef = *p.AvatarRef
		}
		if p.Level != nil {
			level = int64(*p.Level)
		}
		if p.Title != nil {
			title = *p.Title
		}
	}
	return []any{w.PlayerID, max(w.Score, 0), displayName, avatarRef, level, title, w.UpdatedAt}
}
