package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

const seedChunkSize = 1000

// incrementScript applies a delta and clamps at zero in one server-side step,
// so concurrent deltas for the same player never interleave.
var incrementScript = redis.NewScript(`
local current = redis.call('ZSCORE', KEYS[1], ARGV[1])
local previous = 0
if current then
  previous = tonumber(current)
end
local nextScore = previous + tonumber(ARGV[2])
if nextScore < 0 then
  nextScore = 0
end
redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
return {previous, nextScore}
`)

// rankScript returns {score, count of strictly greater scores} from a single
// point-in-time view.
var rankScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score then
  return false
end
local greater = redis.call('ZCOUNT', KEYS[1], '(' .. score, '+inf')
return {tonumber(score), greater}
`)

// RedisIndex keeps trophies in a Redis sorted set.
type RedisIndex struct {
	client redis.UniversalClient
	key    string
}

func NewRedisIndex(client redis.UniversalClient, prefix string) *RedisIndex {
	return &RedisIndex{
		client: client,
		key:    prefix + ":trophies",
	}
}

func (r *RedisIndex) IncrementClamped(ctx context.Context, playerID string, delta int64) (int64, int64, error) {
	vals, err := incrementScript.Run(ctx, r.client, []string{r.key}, playerID, delta).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("increment score: %w", err)
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("increment score: unexpected reply %v", vals)
	}
	return vals[0], vals[1], nil
}

// Seed adds entries with ZADD NX so a score written by a live update is never
// overwritten by older durable data.
func (r *RedisIndex) Seed(ctx context.Context, entries []models.RankEntry) error {
	for start := 0; start < len(entries); start += seedChunkSize {
		end := min(start+seedChunkSize, len(entries))
		members := make([]redis.Z, 0, end-start)
		for _, e := range entries[start:end] {
			members = append(members, redis.Z{Score: float64(max(e.Score, 0)), Member: e.PlayerID})
		}
		if err := r.client.ZAddNX(ctx, r.key, members...).Err(); err != nil {
			return fmt.Errorf("seed index: %w", err)
		}
	}
	return nil
}

func (r *RedisIndex) Score(ctx context.Context, playerID string) (int64, bool, error) {
	score, err := r.client.ZScore(ctx, r.key, playerID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("score of member: %w", err)
	}
	return int64(score), true, nil
}

func (r *RedisIndex) RankOf(ctx context.Context, playerID string) (int64, int64, bool, error) {
	vals, err := rankScript.Run(ctx, r.client, []string{r.key}, playerID).Int64Slice()
	if errors.Is(err, redis.Nil) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("rank of member: %w", err)
	}
	if len(vals) != 2 {
		return 0, 0, false, fmt.Errorf("rank of member: unexpected reply %v", vals)
	}
	return vals[0], vals[1] + 1, true, nil
}

func (r *RedisIndex) CountGreater(ctx context.Context, score int64) (int64, error) {
	count, err := r.client.ZCount(ctx, r.key, "("+strconv.FormatInt(score, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count greater: %w", err)
	}
	return count, nil
}

func (r *RedisIndex) Range(ctx context.Context, start, stop int64) ([]models.RankEntry, error) {
	if start < 0 || stop < start {
		return []models.RankEntry{}, nil
	}

	results, err := r.client.ZRevRangeWithScores(ctx, r.key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("range by rank: %w", err)
	}

	entries := make([]models.RankEntry, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, models.RankEntry{PlayerID: member, Score: int64(z.Score)})
	}
	return entries, nil
}

func (r *RedisIndex) Cardinality(ctx context.Context) (int64, error) {
	n, err := r.client.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("cardinality: %w", err)
	}
	return n, nil
}

func (r *RedisIndex) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	return nil
}
