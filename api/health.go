package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

// HealthHandler returns a handler for the health endpoint
// @Summary      Health check endpoint
// @Description  Returns the current status of the API
// @Tags         health
// @Produce      json
// @Success      200  {object}  models.HealthResponse
// @Router       /api/health [get]
func HealthHandler(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    "OK",
			Version:   version,
			Timestamp: time.Now().UTC(),
		})
	}
}
