package telephony

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// mediaConn wraps a carrier media WebSocket. gorilla allows one concurrent
// writer, so the TTS consumer and the handler goroutine serialize here.
type mediaConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (m *mediaConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return m.conn.WriteJSON(v)
}

func (m *mediaConn) Close() error { return m.conn.Close() }

// streamMap tracks live carrier media sockets keyed by carrier call SID, so
// the TTS consumer can find the egress socket for a call.
type streamMap struct {
	mu      sync.Mutex
	streams map[string]*mediaConn
}

func newStreamMap() *streamMap {
	return &streamMap{streams: make(map[string]*mediaConn)}
}

func (m *streamMap) put(callSID string, conn *mediaConn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[callSID] = conn
}

func (m *streamMap) get(callSID string) *mediaConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[callSID]
}

func (m *streamMap) remove(callSID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, callSID)
}

func (m *streamMap) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

func (m *streamMap) closeAll() {
	m.mu.Lock()
	conns := make([]*mediaConn, 0, len(m.streams))
	for _, c := range m.streams {
		conns = append(conns, c)
	}
	m.streams = make(map[string]*mediaConn)
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
