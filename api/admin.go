package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

// InvalidateSnapshotHandler drops the cached top-N snapshot
// @Summary      Invalidate the snapshot
// @Tags         admin
// @Produce      json
// @Success      200  {object}  models.StatusResponse
// @Failure      503  {object}  models.ErrorResponse
// @Router       /api/admin/snapshot/invalidate [post]
func InvalidateSnapshotHandler(board Leaderboard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := board.InvalidateSnapshot(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.StatusResponse{Status: "invalidated"})
	}
}

// RebuildSnapshotHandler rebuilds the snapshot from the score index
// @Summary      Rebuild the snapshot
// @Tags         admin
// @Produce      json
// @Param        limit  query     int  false  "Snapshot size"
// @Success      200    {object}  models.RebuildResponse
// @Failure      400    {object}  models.ErrorResponse
// @Router       /api/admin/snapshot/rebuild [post]
func RebuildSnapshotHandler(board Leaderboard, defaultLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultLimit
		if raw := c.Query("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid limit"})
				return
			}
			limit = v
		}

		rebuilt := board.RebuildSnapshot(c.Request.Context(), limit)
		c.JSON(http.StatusOK, models.RebuildResponse{Rebuilt: rebuilt, Limit: limit})
	}
}

// MonitorHandler runs one monitor pass
// @Summary      Check snapshot health and rebuild when needed
// @Tags         admin
// @Produce      json
// @Success      200  {object}  models.MonitorResult
// @Router       /api/admin/monitor [post]
func MonitorHandler(board Leaderboard) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, board.MonitorAndRebuild(c.Request.Context()))
	}
}

// ResetIndexHandler clears the score index and snapshot
// @Summary      Reset the score index
// @Tags         admin
// @Produce      json
// @Success      200  {object}  models.StatusResponse
// @Failure      503  {object}  models.ErrorResponse
// @Router       /api/admin/index/reset [post]
func ResetIndexHandler(board Leaderboard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := board.ResetIndex(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.StatusResponse{Status: "reset"})
	}
}
