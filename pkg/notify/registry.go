// Package notify implements the notification fabric: the fanout publisher,
// the per-instance consumer, the WebSocket registry, and the durable
// store-and-forward layer for offline sessions.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxos-ai/voxos/pkg/models"
)

const writeTimeout = 10 * time.Second

// Socket is one registered WebSocket client. Writes are serialized through
// the socket's own mutex because gorilla/websocket permits only one
// concurrent writer.
type Socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewSocket wraps an upgraded connection.
func NewSocket(conn *websocket.Conn) *Socket {
	return &Socket{conn: conn}
}

// WriteJSON sends v as a JSON text frame.
func (s *Socket) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

// WriteBinary sends a binary frame (voice audio).
func (s *Socket) WriteBinary(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close closes the underlying connection.
func (s *Socket) Close() error { return s.conn.Close() }

// Frame is the JSON structure for server → client WebSocket messages.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Registry tracks live WebSocket clients grouped by session. Multiple
// sockets per session are allowed (browser tabs). A send failure evicts the
// socket rather than queueing indefinitely.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]map[*Socket]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[*Socket]bool)}
}

// Connect registers a socket under a session and sends the connected
// greeting.
func (r *Registry) Connect(sessionID string, s *Socket) {
	r.mu.Lock()
	set := r.sessions[sessionID]
	if set == nil {
		set = make(map[*Socket]bool)
		r.sessions[sessionID] = set
	}
	set[s] = true
	total := len(set)
	r.mu.Unlock()

	_ = s.WriteJSON(Frame{Type: "connected", Data: map[string]any{
		"session_id": sessionID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}})

	slog.Info("WebSocket connected", "session_id", sessionID, "connections", total)
}

// Disconnect removes a socket; when the session's set empties the key is
// dropped.
func (r *Registry) Disconnect(sessionID string, s *Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.sessions, sessionID)
		slog.Info("All connections closed for session", "session_id", sessionID)
	}
}

func (r *Registry) socketsFor(sessionID string) []*Socket {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.sessions[sessionID]
	out := make([]*Socket, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// SendNotification delivers a notification to every socket registered for a
// session and returns the number of successful deliveries. Failed sockets
// are evicted.
func (r *Registry) SendNotification(sessionID string, n *models.Notification) int {
	delivered := 0
	for _, s := range r.socketsFor(sessionID) {
		if err := s.WriteJSON(Frame{Type: "notification", Data: n}); err != nil {
			slog.Warn("WebSocket send failed, evicting socket", "session_id", sessionID, "error", err)
			r.Disconnect(sessionID, s)
			_ = s.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// SendFrame delivers an arbitrary frame (transcriptions, call events) to
// every socket registered for a session. Failed sockets are evicted.
func (r *Registry) SendFrame(sessionID string, f Frame) int {
	delivered := 0
	for _, s := range r.socketsFor(sessionID) {
		if err := s.WriteJSON(f); err != nil {
			slog.Warn("WebSocket send failed, evicting socket", "session_id", sessionID, "error", err)
			r.Disconnect(sessionID, s)
			_ = s.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// BroadcastNotification delivers a notification to every registered socket
// across all sessions.
func (r *Registry) BroadcastNotification(n *models.Notification) int {
	r.mu.Lock()
	sessionIDs := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		sessionIDs = append(sessionIDs, id)
	}
	r.mu.Unlock()

	delivered := 0
	for _, id := range sessionIDs {
		delivered += r.SendNotification(id, n)
	}
	return delivered
}

// HasSession reports whether at least one socket is registered for the
// session.
func (r *Registry) HasSession(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[sessionID]) > 0
}

// SessionCount returns the number of sessions with live sockets.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
