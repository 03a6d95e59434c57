package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/relation-engine/relation-engine/internal/middleware"
	"github.com/relation-engine/relation-engine/internal/services"
)

type RelationshipHandler struct {
	followService     *services.FollowService
	connectionService *services.ConnectionService
	blockService      *services.BlockService
	statusService     *services.StatusService
}

func NewRelationshipHandler(
	followService *services.FollowService,
	connectionService *services.ConnectionService,
	blockService *services.BlockService,
	statusService *services.StatusService,
) *RelationshipHandler {
	return &RelationshipHandler{
		followService:     followService,
		connectionService: connectionService,
		blockService:      blockService,
		statusService:     statusService,
	}
}

// respondError 领域错误原样给出具体提示，存储失败统一回可重试的提示
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrConnectionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyFollowing),
		errors.Is(err, services.ErrAlreadyBlocked),
		errors.Is(err, services.ErrAlreadyConnected),
		errors.Is(err, services.ErrPendingRequestExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case services.IsDomainError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong, please try again"})
	}
}

func paginate(c *gin.Context) (int, int) {
	query := struct {
		Offset int `form:"offset"`
		Limit  int `form:"limit"`
	}{Limit: 20}
	if err := c.ShouldBindQuery(&query); err != nil {
		return 0, 20
	}
	if query.Limit > 100 {
		query.Limit = 100
	}
	if query.Limit < 1 {
		query.Limit = 20
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	return query.Offset, query.Limit
}

type targetRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type blockRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Reason string `json:"reason" binding:"max=255"`
}

func (h *RelationshipHandler) Follow(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.followService.Follow(c.Request.Context(), middleware.GetUserID(c), req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Followed successfully"})
}

func (h *RelationshipHandler) Unfollow(c *gin.Context) {
	if err := h.followService.Unfollow(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unfollowed successfully"})
}

func (h *RelationshipHandler) GetFollowers(c *gin.Context) {
	offset, limit := paginate(c)
	followers, err := h.followService.ListFollowers(c.Request.Context(), c.Param("id"), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	users, err := h.followService.Profiles(c.Request.Context(), followers)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"followers": followers, "users": users, "offset": offset, "limit": limit})
}

func (h *RelationshipHandler) GetFollowing(c *gin.Context) {
	offset, limit := paginate(c)
	following, err := h.followService.ListFollowing(c.Request.Context(), c.Param("id"), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	users, err := h.followService.Profiles(c.Request.Context(), following)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following, "users": users, "offset": offset, "limit": limit})
}

func (h *RelationshipHandler) RequestConnection(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.connectionService.RequestConnection(c.Request.Context(), middleware.GetUserID(c), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"connection": conn})
}

func (h *RelationshipHandler) AcceptConnection(c *gin.Context) {
	connectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid connection ID"})
		return
	}

	conn, err := h.connectionService.AcceptConnection(c.Request.Context(), connectionID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connection": conn})
}

func (h *RelationshipHandler) RejectConnection(c *gin.Context) {
	connectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid connection ID"})
		return
	}

	if err := h.connectionService.RejectConnection(c.Request.Context(), connectionID, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Connection request rejected"})
}

func (h *RelationshipHandler) RemoveConnection(c *gin.Context) {
	if err := h.connectionService.RemoveConnection(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Connection removed"})
}

func (h *RelationshipHandler) GetConnections(c *gin.Context) {
	offset, limit := paginate(c)
	conns, err := h.connectionService.ListConnections(c.Request.Context(), c.Param("id"), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns, "offset": offset, "limit": limit})
}

func (h *RelationshipHandler) GetPendingRequests(c *gin.Context) {
	offset, limit := paginate(c)
	conns, err := h.connectionService.ListPendingRequests(c.Request.Context(), middleware.GetUserID(c), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": conns, "offset": offset, "limit": limit})
}

func (h *RelationshipHandler) GetSentRequests(c *gin.Context) {
	offset, limit := paginate(c)
	conns, err := h.connectionService.ListSentRequests(c.Request.Context(), middleware.GetUserID(c), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": conns, "offset": offset, "limit": limit})
}

func (h *RelationshipHandler) Block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.blockService.Block(c.Request.Context(), middleware.GetUserID(c), req.UserID, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User blocked"})
}

func (h *RelationshipHandler) Unblock(c *gin.Context) {
	if err := h.blockService.Unblock(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User unblocked"})
}

func (h *RelationshipHandler) GetBlocked(c *gin.Context) {
	offset, limit := paginate(c)
	blocks, err := h.blockService.ListBlocked(c.Request.Context(), middleware.GetUserID(c), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": blocks, "offset": offset, "limit": limit})
}

// GetRelationship 当前用户视角下与目标用户的合并关系状态
func (h *RelationshipHandler) GetRelationship(c *gin.Context) {
	status, err := h.statusService.GetRelationship(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationship": status})
}

// GetRelationshipHistory 当前用户与目标用户之间三类历史的合并视图
func (h *RelationshipHandler) GetRelationshipHistory(c *gin.Context) {
	offset, limit := paginate(c)
	userID := middleware.GetUserID(c)
	otherID := c.Param("id")

	follows, err := h.followService.HistoryBetween(c.Request.Context(), userID, otherID, offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	connections, err := h.connectionService.HistoryBetween(c.Request.Context(), userID, otherID, offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	blocks, err := h.blockService.HistoryBetween(c.Request.Context(), userID, otherID, offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"follow_history":     follows,
		"connection_history": connections,
		"block_history":      blocks,
		"offset":             offset,
		"limit":              limit,
	})
}

func (h *RelationshipHandler) GetUserCounts(c *gin.Context) {
	counts, err := h.statusService.GetUserCounts(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (h *RelationshipHandler) GetStats(c *gin.Context) {
	stats, err := h.statusService.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
