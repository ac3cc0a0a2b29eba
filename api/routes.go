package api

import (
	"context"
	"time"

	gincache "github.com/gin-contrib/cache"
	"github.com/gin-contrib/cache/persistence"
	"github.com/gin-gonic/gin"

	"github.com/IWhitebird/trophy-leaderboard/internal/metrics"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

// Leaderboard is the ranking surface the handlers need. *ranking.Engine
// satisfies it.
type Leaderboard interface {
	ApplyScoreDelta(ctx context.Context, playerID string, delta int64, patch *models.AttributesPatch) (models.ScoreUpdate, error)
	GetRank(ctx context.Context, playerID string) (models.PlayerRank, bool, error)
	GetRange(ctx context.Context, start, end int64, enrich bool) (models.RangeResult, error)
	InvalidateSnapshot(ctx context.Context) error
	RebuildSnapshot(ctx context.Context, limit int) bool
	MonitorAndRebuild(ctx context.Context) models.MonitorResult
	ResetIndex(ctx context.Context) error
}

// ScorePublisher hands score events to the ingestion topic.
type ScorePublisher interface {
	SendScore(ctx context.Context, event models.ScoreEvent) error
}

type Options struct {
	Version string

	// Publisher is optional. Without it scores are applied in the request.
	Publisher ScorePublisher

	// PageCache stores enriched responses for EnrichedTTL.
	PageCache     persistence.CacheStore
	EnrichedTTL   time.Duration
	SnapshotLimit int
}

func ConfigureRoutes(r *gin.Engine, board Leaderboard, opts Options) {
	r.Use(MetricsMiddleware())

	// API group
	api := r.Group("/api")

	// Health endpoint
	api.GET("/health", HealthHandler(opts.Version))

	// Leaderboard endpoints
	leaderboard := api.Group("/leaderboard")
	{
		leaderboard.GET("/rank/:playerId", GetPlayerRankHandler(board))
		leaderboard.GET("/top", GetTopPlayersHandler(board, false))

		enriched := GetTopPlayersHandler(board, true)
		if opts.PageCache != nil && opts.EnrichedTTL > 0 {
			enriched = gincache.CachePage(opts.PageCache, opts.EnrichedTTL, enriched)
		}
		leaderboard.GET("/top/enriched", enriched)

		leaderboard.POST("/score", SubmitScoreHandler(board, opts.Publisher))
	}

	// Operational endpoints
	admin := api.Group("/admin")
	{
		admin.POST("/snapshot/invalidate", InvalidateSnapshotHandler(board))
		admin.POST("/snapshot/rebuild", RebuildSnapshotHandler(board, opts.SnapshotLimit))
		admin.POST("/monitor", MonitorHandler(board))
		admin.POST("/index/reset", ResetIndexHandler(board))
	}
}

// MetricsMiddleware counts requests by matched route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(route, c.Request.Method, c.Writer.Status())
	}
}
