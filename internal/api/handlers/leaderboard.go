package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/iampjeetsingh/TLE/internal/repository"
)

type LeaderboardHandler struct {
	ratingRepo *repository.RatingRepository
}

func NewLeaderboardHandler(ratingRepo *repository.RatingRepository) *LeaderboardHandler {
	return &LeaderboardHandler{
		ratingRepo: ratingRepo,
	}
}

// GetLeaderboard godoc
// @Summary Get duel rating leaderboard
// @Description Get top users ranked by duel rating
// @Tags leaderboard
// @Accept json
// @Produce json
// @Param limit query int false "Number of top users to return" default(20)
// @Success 200 {object} map[string]interface{} "Leaderboard with user rankings"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /leaderboard [get]
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	ratings, err := h.ratingRepo.Leaderboard(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get leaderboard",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard": ratings,
		"total":       len(ratings),
	})
}

// GetRating 특정 사용자의 듀얼 레이팅 조회
func (h *LeaderboardHandler) GetRating(c *gin.Context) {
	userId := c.Param("userId")

	rating, err := h.ratingRepo.GetRating(userId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get rating",
		})
		return
	}

	c.JSON(http.StatusOK, rating)
}
