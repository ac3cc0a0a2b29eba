package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
	"github.com/IWhitebird/trophy-leaderboard/internal/mq"
	"github.com/IWhitebird/trophy-leaderboard/internal/ranking"
)

// GetPlayerRankHandler returns a handler for getting a player's rank
// @Summary      Get a player's rank
// @Description  Returns the competition rank, trophies and display attributes of a player
// @Tags         leaderboard
// @Produce      json
// @Param        playerId  path      string  true  "Player ID"
// @Success      200       {object}  models.PlayerRank
// @Failure      400       {object}  models.ErrorResponse
// @Failure      404       {object}  models.ErrorResponse
// @Failure      503       {object}  models.ErrorResponse
// @Router       /api/leaderboard/rank/{playerId} [get]
func GetPlayerRankHandler(board Leaderboard) gin.HandlerFunc {
	return func(c *gin.Context) {
		rank, found, err := board.GetRank(c.Request.Context(), c.Param("playerId"))
		if err != nil {
			writeError(c, err)
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Player not found"})
			return
		}
		c.JSON(http.StatusOK, rank)
	}
}

// GetTopPlayersHandler returns a handler for reading a page of the leaderboard
// @Summary      Get a page of the leaderboard
// @Description  Returns ranks start..end (1-based, inclusive) ordered by trophies. The enriched variant adds clan and stats and is cached briefly.
// @Tags         leaderboard
// @Produce      json
// @Param        start  query     int  false  "First rank" default(1)
// @Param        end    query     int  false  "Last rank"  default(10)
// @Success      200    {object}  models.TopPlayersResponse
// @Failure      400    {object}  models.ErrorResponse
// @Failure      503    {object}  models.ErrorResponse
// @Router       /api/leaderboard/top [get]
// @Router       /api/leaderboard/top/enriched [get]
func GetTopPlayersHandler(board Leaderboard, enrich bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start, err := strconv.ParseInt(c.DefaultQuery("start", "1"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid start"})
			return
		}
		end, err := strconv.ParseInt(c.DefaultQuery("end", "10"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid end"})
			return
		}

		result, err := board.GetRange(c.Request.Context(), start, end, enrich)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.TopPlayersResponse{Start: start, End: end, RangeResult: result})
	}
}

// SubmitScoreHandler returns a handler for submitting a trophy delta
// @Summary      Submit a trophy delta
// @Description  Applies a signed trophy delta and optional attribute patch. With Kafka ingestion enabled the event is queued and 202 is returned.
// @Tags         leaderboard
// @Accept       json
// @Produce      json
// @Param        score  body      models.ScoreRequest  true  "Score delta"
// @Success      200    {object}  models.ScoreUpdate
// @Success      202    {object}  models.AcceptedResponse
// @Failure      400    {object}  models.ErrorResponse
// @Failure      503    {object}  models.ErrorResponse
// @Router       /api/leaderboard/score [post]
func SubmitScoreHandler(board Leaderboard, publisher ScorePublisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScoreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid score data"})
			return
		}

		if publisher != nil {
			event := mq.NewScoreEvent(req.PlayerID, req.Delta, req.Attributes)
			err := publisher.SendScore(c.Request.Context(), event)
			if err == nil {
				c.JSON(http.StatusAccepted, models.AcceptedResponse{EventID: event.EventID, Status: "queued"})
				return
			}
			// Fall through to a direct write so the delta is not lost.
			logging.Warn("Could not queue score event, applying directly", "player_id", req.PlayerID, "error", err)
		}

		update, err := board.ApplyScoreDelta(c.Request.Context(), req.PlayerID, req.Delta, req.Attributes)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, update)
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ranking.ErrInvalidPlayerID), errors.Is(err, ranking.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ranking.ErrRankingUnavailable):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
	default:
		logging.Error("Unhandled request error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
	}
}
