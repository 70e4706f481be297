package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxos-ai/voxos/pkg/models"
)

type actionStatusRequest struct {
	AgentID           string `json:"agent_id" binding:"required"`
	SessionID         string `json:"session_id"`
	ActionDescription string `json:"action_description" binding:"required"`
}

// actionStatusHandler publishes an agent_action_status notification.
func (s *Server) actionStatusHandler(c *gin.Context) {
	var req actionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.ui.PublishAgentActionStatus(c.Request.Context(), req.SessionID, models.AgentActionStatusPayload{
		AgentID:           req.AgentID,
		SessionID:         req.SessionID,
		ActionDescription: req.ActionDescription,
		Timestamp:         time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Failed to publish action status", "agent_id", req.AgentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type appInteractionRequest struct {
	AgentID   string         `json:"agent_id" binding:"required"`
	SessionID string         `json:"session_id"`
	AppName   string         `json:"app_name" binding:"required"`
	Action    string         `json:"action" binding:"required"`
	Result    map[string]any `json:"result"`
}

// appInteractionHandler publishes an app_interaction notification.
func (s *Server) appInteractionHandler(c *gin.Context) {
	var req appInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.ui.PublishAppInteraction(c.Request.Context(), req.SessionID, models.AppInteractionPayload{
		AgentID:   req.AgentID,
		AppName:   req.AppName,
		Action:    req.Action,
		Result:    req.Result,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Failed to publish app interaction", "agent_id", req.AgentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// pendingCountHandler reports undelivered notifications for a session.
func (s *Server) pendingCountHandler(c *gin.Context) {
	sessionID := c.Param("session_id")
	count, err := s.pending.PendingCount(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "pending": count})
}
