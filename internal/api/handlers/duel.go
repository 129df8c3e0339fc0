package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/iampjeetsingh/TLE/internal/models"
	"github.com/iampjeetsingh/TLE/internal/service"
)

// DuelHandler 듀얼 라이프사이클 엔드포인트
type DuelHandler struct {
	duelService *service.DuelService
}

func NewDuelHandler(duelService *service.DuelService) *DuelHandler {
	return &DuelHandler{
		duelService: duelService,
	}
}

// Challenge godoc
// @Summary Challenge a user to a duel
// @Description Create a pending duel challenge against another user
// @Tags duels
// @Accept json
// @Produce json
// @Param request body models.ChallengeRequest true "Challenge details"
// @Success 201 {object} models.Duel
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 409 {object} map[string]string "A participant is already in a duel"
// @Router /duels [post]
func (h *DuelHandler) Challenge(c *gin.Context) {
	var req models.ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	userId, _ := c.Get("userId")

	duel, err := h.duelService.Challenge(userId.(string), req.ChallengedID, req.IsRated)
	if err != nil {
		respondDuelError(c, err)
		return
	}

	c.JSON(http.StatusCreated, duel)
}

// Accept 도전 수락. 문제가 배정되고 듀얼이 시작된다.
func (h *DuelHandler) Accept(c *gin.Context) {
	id := c.Param("id")
	userId, _ := c.Get("userId")

	duel, err := h.duelService.Accept(c.Request.Context(), id, userId.(string))
	if err != nil {
		respondDuelError(c, err)
		return
	}

	c.JSON(http.StatusOK, duel)
}

// Decline 도전 거절
func (h *DuelHandler) Decline(c *gin.Context) {
	id := c.Param("id")
	userId, _ := c.Get("userId")

	duel, err := h.duelService.Decline(id, userId.(string))
	if err != nil {
		respondDuelError(c, err)
		return
	}

	c.JSON(http.StatusOK, duel)
}

// Poll 수동 판정 폴링. 스윕을 기다리지 않고 즉시 판정을 확인한다.
func (h *DuelHandler) Poll(c *gin.Context) {
	id := c.Param("id")

	duel, err := h.duelService.PollOutcome(c.Request.Context(), id)
	if err != nil {
		respondDuelError(c, err)
		return
	}

	c.JSON(http.StatusOK, duel)
}

// Invalidate 운영자 강제 무효화. RequireModerator 미들웨어 뒤에 마운트된다.
func (h *DuelHandler) Invalidate(c *gin.Context) {
	id := c.Param("id")

	duel, err := h.duelService.Invalidate(id)
	if err != nil {
		respondDuelError(c, err)
		return
	}

	c.JSON(http.StatusOK, duel)
}

// GetDuel 특정 듀얼 조회
func (h *DuelHandler) GetDuel(c *gin.Context) {
	id := c.Param("id")

	duel, err := h.duelService.GetDuel(id)
	if err != nil {
		respondDuelError(c, err)
		return
	}

	c.JSON(http.StatusOK, duel)
}

// GetActiveDuel 요청자의 현재 활성 듀얼 조회
func (h *DuelHandler) GetActiveDuel(c *gin.Context) {
	userId, _ := c.Get("userId")

	duel := h.duelService.GetActiveDuel(userId.(string))
	if duel == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No active duel",
		})
		return
	}

	c.JSON(http.StatusOK, duel)
}

// GetHistory 요청자의 종료된 듀얼 이력 조회
func (h *DuelHandler) GetHistory(c *gin.Context) {
	userId, _ := c.Get("userId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	duels, err := h.duelService.GetHistory(userId.(string), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get duel history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"duels": duels,
		"total": len(duels),
	})
}

// respondDuelError 서비스 에러를 HTTP 상태 코드로 매핑
func respondDuelError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDuelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Duel not found"})
	case errors.Is(err, service.ErrAlreadyInDuel):
		c.JSON(http.StatusConflict, gin.H{"error": "A participant is already in a duel"})
	case errors.Is(err, service.ErrSelfChallenge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot challenge yourself"})
	case errors.Is(err, service.ErrNotChallenged):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the challenged user may do this"})
	case errors.Is(err, service.ErrExpiredChallenge):
		c.JSON(http.StatusGone, gin.H{"error": "The challenge has expired"})
	case errors.Is(err, service.ErrNoProblemAvailable):
		c.JSON(http.StatusConflict, gin.H{"error": "No suitable problem available"})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "The duel is not in a valid state for this action"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
