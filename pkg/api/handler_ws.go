package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/voxos-ai/voxos/pkg/auth"
	"github.com/voxos-ai/voxos/pkg/callmgr"
	"github.com/voxos-ai/voxos/pkg/notify"
)

// clientMessage is a client → server frame on the conversation stream.
type clientMessage struct {
	Type          string         `json:"type"` // user_message, ping
	Content       string         `json:"content"`
	InputMode     string         `json:"inputMode"`
	VoiceMetadata map[string]any `json:"voiceMetadata"`
}

// conversationWSHandler serves /ws/conversations/{session_id}/stream: the
// UI's notification stream. On connect, pending notifications replay in
// created_at order; afterwards the fabric delivers live ones.
func (s *Server) conversationWSHandler(c *gin.Context) {
	sessionID := c.Param("session_id")

	if _, err := s.tokens.Validate(c.Query("token"), sessionID, auth.ScopeConversation); err != nil {
		slog.Warn("Conversation WS auth failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("Conversation WS upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	sock := notify.NewSocket(ws)

	s.registry.Connect(sessionID, sock)
	defer s.registry.Disconnect(sessionID, sock)

	// Catch up on anything missed while disconnected.
	notify.DeliverPending(c.Request.Context(), s.pending, s.registry, sessionID)

	// Mirror call lifecycle events onto this session's sockets.
	s.callManager.RegisterEventCallback(sessionID, func(event *callmgr.UIEvent) {
		if event.Call.SessionID != sessionID {
			return
		}
		s.registry.SendFrame(sessionID, notify.Frame{Type: "call_event", Data: event})
	})
	defer s.callManager.UnregisterEventCallback(sessionID)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Conversation WS read error", "session_id", sessionID, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = sock.WriteJSON(notify.Frame{Type: "error", Data: gin.H{
				"code":           "invalid_json",
				"message":        "message must be JSON",
				"severity":       "warning",
				"retry_possible": true,
			}})
			continue
		}

		switch msg.Type {
		case "ping":
			_ = sock.WriteJSON(notify.Frame{Type: "pong"})

		case "user_message":
			if msg.Content == "" {
				_ = sock.WriteJSON(notify.Frame{Type: "error", Data: gin.H{
					"code":           "missing_field",
					"message":        "content is required",
					"severity":       "warning",
					"retry_possible": true,
				}})
				continue
			}
			if err := s.forwardUserMessage(c.Request.Context(), sessionID, msg.Content, msg.InputMode, msg.VoiceMetadata); err != nil {
				slog.Error("Failed to forward WS user message", "session_id", sessionID, "error", err)
				_ = sock.WriteJSON(notify.Frame{Type: "error", Data: gin.H{
					"code":           "forward_failed",
					"message":        "could not deliver message",
					"severity":       "error",
					"retry_possible": true,
				}})
			}

		default:
			slog.Debug("Unknown conversation WS message", "type", msg.Type)
		}
	}
}
