package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/models"
)

// getConversationHandler returns paged message history for a session.
func (s *Server) getConversationHandler(c *gin.Context) {
	sessionID := c.Param("session_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := s.messages.List(c.Request.Context(), sessionID, limit, offset)
	if err != nil {
		slog.Error("Failed to list messages", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
		"limit":      limit,
		"offset":     offset,
	})
}

type agentMessageRequest struct {
	SessionID       string `json:"session_id" binding:"required"`
	AgentID         string `json:"agent_id" binding:"required"`
	Content         string `json:"content" binding:"required"`
	ContentType     string `json:"content_type"`
	InputMode       string `json:"input_mode"`
	AudioFilePath   string `json:"audio_file_path"`
	AudioDurationMS *int   `json:"audio_duration_ms"`
}

// agentMessageHandler receives an agent→user message, persists it, and fans
// out a new_message notification.
func (s *Server) agentMessageHandler(c *gin.Context) {
	var req agentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ContentType == "" {
		req.ContentType = "text"
	}
	if req.InputMode == "" {
		req.InputMode = "text"
	}

	messageID, err := s.messages.Insert(c.Request.Context(), &models.ConversationMessage{
		SessionID:   req.SessionID,
		Sender:      req.AgentID,
		Content:     req.Content,
		ContentType: req.ContentType,
		InputMode:   req.InputMode,
	})
	if err != nil {
		slog.Error("Failed to persist agent message", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	payload := models.NewMessagePayload{
		SessionID:       req.SessionID,
		MessageID:       messageID,
		AgentID:         req.AgentID,
		Content:         req.Content,
		ContentType:     req.ContentType,
		InputMode:       req.InputMode,
		AudioFilePath:   req.AudioFilePath,
		AudioDurationMS: req.AudioDurationMS,
		Timestamp:       time.Now().UTC(),
	}
	if req.AudioFilePath != "" {
		payload.AudioURL = s.signer.SignedURL(req.AudioFilePath, 24*time.Hour)
	}

	if err := s.ui.PublishNewMessage(c.Request.Context(), payload); err != nil {
		slog.Error("Failed to fan out new_message", "session_id", req.SessionID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message_id": messageID})
}

type userMessageRequest struct {
	SessionID     string         `json:"session_id" binding:"required"`
	Content       string         `json:"content" binding:"required"`
	InputMode     string         `json:"input_mode"`
	VoiceMetadata map[string]any `json:"voice_metadata"`
}

// userMessageHandler accepts a user→agent message (internal, after the
// WS-assisted flow) and forwards it to the primary agent queue.
func (s *Server) userMessageHandler(c *gin.Context) {
	var req userMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.messages.Insert(c.Request.Context(), &models.ConversationMessage{
		SessionID:   req.SessionID,
		Sender:      "user",
		Content:     req.Content,
		ContentType: "text",
		InputMode:   req.InputMode,
	}); err != nil {
		slog.Error("Failed to persist user message", "session_id", req.SessionID, "error", err)
	}

	if err := s.forwardUserMessage(c.Request.Context(), req.SessionID, req.Content, req.InputMode, req.VoiceMetadata); err != nil {
		slog.Error("Failed to forward user message", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to forward message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) forwardUserMessage(ctx context.Context, sessionID, content, inputMode string, voiceMetadata map[string]any) error {
	payload := map[string]any{
		"session_id": sessionID,
		"content":    content,
		"input_mode": inputMode,
	}
	if voiceMetadata != nil {
		payload["voice_metadata"] = voiceMetadata
	}
	return s.publisher.PublishEnvelopeToAgent(ctx, bus.PrimaryAgentID, "user_message", "gateway", payload)
}
