package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voxos-ai/voxos/pkg/auth"
)

type voiceTokenRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	UserID    string `json:"user_id"`
}

// voiceTokenHandler mints a short-lived JWT for the voice WebSocket.
func (s *Server) voiceTokenHandler(c *gin.Context) {
	var req voiceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := s.tokens.Mint(req.SessionID, req.UserID, auth.ScopeVoice, auth.VoiceTokenTTL)
	if err != nil {
		slog.Error("Failed to mint voice token", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(auth.VoiceTokenTTL.Seconds()),
	})
}

// signedAudioHandler serves an audio file gated by an HMAC-signed URL.
// Signature verification is constant-time and expiry is enforced before
// the signature check.
func (s *Server) signedAudioHandler(c *gin.Context) {
	signature := c.Param("signature")
	filePath := c.Query("file")
	expiresStr := c.Query("expires")

	if filePath == "" || expiresStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file or expires"})
		return
	}
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires"})
		return
	}

	if err := s.signer.Verify(signature, filePath, expires); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	// Confine to the audio volume; signed paths are relative.
	clean := filepath.Clean(filePath)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file path"})
		return
	}
	full := filepath.Join(s.cfg.AudioFilesDir, clean)

	c.File(full)
}
