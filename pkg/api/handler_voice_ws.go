package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/voxos-ai/voxos/pkg/auth"
	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/models"
	"github.com/voxos-ai/voxos/pkg/notify"
)

// startSessionMessage is the required first frame on the voice WebSocket.
type startSessionMessage struct {
	Type    string `json:"type"` // must be "start_session"
	Payload struct {
		Platform      string `json:"platform"`
		AudioFormat   string `json:"audio_format"`
		UserTimezone  string `json:"user_timezone"`
		EndpointingMS int    `json:"endpointing_ms"`
		TTSProvider   string `json:"tts_provider"`
		TTSVoiceID    string `json:"tts_voice_id"`
	} `json:"payload"`
}

func (s *Server) voiceSocket(sessionID string) *notify.Socket {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	return s.voiceSockets[sessionID]
}

func (s *Server) setVoiceSocket(sessionID string, sock *notify.Socket) {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	s.voiceSockets[sessionID] = sock
}

func (s *Server) clearVoiceSocket(sessionID string, sock *notify.Socket) {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	if s.voiceSockets[sessionID] == sock {
		delete(s.voiceSockets, sessionID)
	}
}

// voiceWSHandler serves /ws/voice/{session_id}: JSON control frames and
// binary audio in both directions. The first client frame must be
// start_session; after that, binary frames are caller PCM published to the
// bridge and binary frames from the server are WAV TTS audio.
//
// A drop while the session's call is connected holds the call
// (user_disconnected); a reconnect resumes it.
func (s *Server) voiceWSHandler(c *gin.Context) {
	sessionID := c.Param("session_id")

	if _, err := s.tokens.Validate(c.Query("token"), sessionID, auth.ScopeVoice); err != nil {
		slog.Warn("Voice WS auth failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("Voice WS upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	sock := notify.NewSocket(ws)

	// Protocol: first frame must be start_session.
	_, first, err := ws.ReadMessage()
	if err != nil {
		_ = sock.Close()
		return
	}
	var start startSessionMessage
	if err := json.Unmarshal(first, &start); err != nil || start.Type != "start_session" {
		_ = sock.WriteJSON(notify.Frame{Type: "error", Data: gin.H{
			"code":           "protocol_violation",
			"message":        "first message must be start_session",
			"severity":       "fatal",
			"retry_possible": false,
		}})
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "start_session required"))
		_ = sock.Close()
		return
	}

	s.setVoiceSocket(sessionID, sock)
	defer s.clearVoiceSocket(sessionID, sock)

	_ = sock.WriteJSON(notify.Frame{Type: "session_started", Data: gin.H{
		"session_id": sessionID,
		"platform":   start.Payload.Platform,
	}})

	slog.Info("Voice WS session started", "session_id", sessionID, "platform", start.Payload.Platform)

	// Reconnect path: a held call resumes once the user's audio is back.
	if call := s.callManager.GetActiveCall(sessionID); call != nil && call.Status == models.CallStatusOnHold {
		s.callManager.ResumeCall(c.Request.Context(), call.CallID)
	}

	streamDeclared := false
	noCallWarned := false

	defer s.holdOnDisconnect(sessionID)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			slog.Info("Voice WS closed", "session_id", sessionID, "error", err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			call := s.callManager.GetActiveCall(sessionID)
			if call == nil {
				if !noCallWarned {
					noCallWarned = true
					_ = sock.WriteJSON(notify.Frame{Type: "error", Data: gin.H{
						"code":           "no_active_call",
						"message":        "no active call for this session",
						"severity":       "warning",
						"retry_possible": true,
					}})
				}
				continue
			}
			noCallWarned = false

			if !streamDeclared {
				streamDeclared = true
				s.publishStreamStarted(c.Request.Context(), sessionID, call.CallID.String())
			}
			s.publishCallAudio(c.Request.Context(), sessionID, call.CallID.String(), data)

		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = sock.WriteJSON(notify.Frame{Type: "error", Data: gin.H{
					"code":           "invalid_json",
					"message":        "control frames must be JSON",
					"severity":       "warning",
					"retry_possible": true,
				}})
				continue
			}
			if msg.Type == "ping" {
				_ = sock.WriteJSON(notify.Frame{Type: "pong"})
			}
		}
	}
}

// holdOnDisconnect parks the session's connected call when the voice socket
// drops; the timeout monitor ends it if the user never comes back.
func (s *Server) holdOnDisconnect(sessionID string) {
	call := s.callManager.GetActiveCall(sessionID)
	if call == nil || call.Status != models.CallStatusConnected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.callManager.HoldCall(ctx, call.CallID, "user_disconnected") {
		slog.Info("Held call after voice disconnect", "session_id", sessionID, "call_id", call.CallID)
	}
}

func (s *Server) publishStreamStarted(ctx context.Context, sessionID, callID string) {
	if err := s.publisher.PublishToQueue(ctx, bus.CallAudioQueue, map[string]any{
		"type":       "stream_started",
		"session_id": sessionID,
		"call_id":    callID,
		"source":     "web",
	}); err != nil {
		slog.Error("Failed to publish stream_started", "session_id", sessionID, "error", err)
	}
}

func (s *Server) publishCallAudio(ctx context.Context, sessionID, callID string, pcm []byte) {
	if err := s.publisher.PublishToQueue(ctx, bus.CallAudioQueue, map[string]any{
		"type":       "call_audio",
		"session_id": sessionID,
		"call_id":    callID,
		"audio_data": base64.StdEncoding.EncodeToString(pcm),
		"source":     "web",
	}); err != nil {
		slog.Error("Failed to publish call audio", "session_id", sessionID, "error", err)
	}
}
