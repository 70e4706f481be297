package api

import (
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voxos-ai/voxos/pkg/models"
	"github.com/voxos-ai/voxos/pkg/notify"
)

type transcriptionRequest struct {
	SessionID  string   `json:"session_id" binding:"required"`
	CallID     string   `json:"call_id" binding:"required"`
	Text       string   `json:"text" binding:"required"`
	IsFinal    bool     `json:"is_final"`
	Confidence *float64 `json:"confidence"`
}

// transcriptionHandler receives interim/final transcripts from the bridge:
// interim frames go to the session's sockets for live display; finals are
// also persisted to the call transcript.
func (s *Server) transcriptionHandler(c *gin.Context) {
	var req transcriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	frameType := "transcription_interim"
	if req.IsFinal {
		frameType = "transcription_final"
	}
	frame := notify.Frame{Type: frameType, Data: gin.H{
		"session_id": req.SessionID,
		"call_id":    req.CallID,
		"text":       req.Text,
		"confidence": req.Confidence,
	}}

	// The voice socket shows live captions; conversation sockets mirror
	// them into the chat surface.
	if sock := s.voiceSocket(req.SessionID); sock != nil {
		if err := sock.WriteJSON(frame); err != nil {
			slog.Warn("Voice socket transcription write failed", "session_id", req.SessionID, "error", err)
		}
	}
	s.registry.SendFrame(req.SessionID, frame)

	if req.IsFinal {
		callID, err := uuid.Parse(req.CallID)
		if err == nil {
			if err := s.callManager.AddTranscript(c.Request.Context(), &models.CallTranscript{
				CallID:        callID,
				SpeakerType:   models.SpeakerUser,
				Content:       req.Text,
				STTConfidence: req.Confidence,
			}); err != nil {
				slog.Error("Failed to persist transcript", "call_id", req.CallID, "error", err)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type ttsAudioRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	CallID    string `json:"call_id" binding:"required"`
	AudioB64  string `json:"audio_b64" binding:"required"`
	Text      string `json:"text"`
	AgentID   string `json:"agent_id"`
}

// ttsAudioHandler receives synthesized audio from the bridge and relays it
// to the session's voice WebSocket as a binary frame. The agent's words are
// also persisted to the call transcript.
func (s *Server) ttsAudioHandler(c *gin.Context) {
	var req ttsAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	audioData, err := base64.StdEncoding.DecodeString(req.AudioB64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audio encoding"})
		return
	}

	sock := s.voiceSocket(req.SessionID)
	if sock == nil {
		slog.Warn("No voice socket for TTS audio", "session_id", req.SessionID, "call_id", req.CallID)
		c.JSON(http.StatusOK, gin.H{"success": false, "delivered": false})
		return
	}
	if err := sock.WriteBinary(audioData); err != nil {
		slog.Warn("Voice socket TTS write failed", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "delivered": false})
		return
	}

	if req.Text != "" {
		if callID, err := uuid.Parse(req.CallID); err == nil {
			if err := s.callManager.AddTranscript(c.Request.Context(), &models.CallTranscript{
				CallID:      callID,
				SpeakerType: models.SpeakerAgent,
				SpeakerID:   req.AgentID,
				Content:     req.Text,
			}); err != nil {
				slog.Error("Failed to persist agent transcript", "call_id", req.CallID, "error", err)
			}
		}
	}

	slog.Info("Relayed TTS audio to voice socket", "session_id", req.SessionID, "bytes", len(audioData))
	c.JSON(http.StatusOK, gin.H{"success": true, "delivered": true})
}
