package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxos-ai/voxos/pkg/models"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dialRegistry spins up a WS endpoint that registers connections under the
// session named in the path and returns a connected client.
func dialRegistry(t *testing.T, r *Registry, sessionID string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := testUpgrader.Upgrade(w, req, nil)
		require.NoError(t, err)
		sock := NewSocket(ws)
		r.Connect(strings.TrimPrefix(req.URL.Path, "/"), sock)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + sessionID
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func readFrame(t *testing.T, client *websocket.Conn) map[string]any {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func testNotification(sessionID string) *models.Notification {
	return &models.Notification{
		NotificationID: uuid.New(),
		Type:           models.NotificationNewMessage,
		SessionID:      sessionID,
		Payload:        json.RawMessage(`{"content":"hi"}`),
		Timestamp:      time.Now().UTC(),
	}
}

func TestRegistry(t *testing.T) {
	t.Run("connect sends the greeting frame", func(t *testing.T) {
		r := NewRegistry()
		client := dialRegistry(t, r, "s1")

		frame := readFrame(t, client)
		assert.Equal(t, "connected", frame["type"])
	})

	t.Run("notification reaches every socket of the session", func(t *testing.T) {
		r := NewRegistry()
		a := dialRegistry(t, r, "s1")
		b := dialRegistry(t, r, "s1")
		readFrame(t, a) // greetings
		readFrame(t, b)

		require.Eventually(t, func() bool { return r.HasSession("s1") },
			time.Second, 10*time.Millisecond)

		delivered := r.SendNotification("s1", testNotification("s1"))
		assert.Equal(t, 2, delivered)

		for _, client := range []*websocket.Conn{a, b} {
			frame := readFrame(t, client)
			assert.Equal(t, "notification", frame["type"])
		}
	})

	t.Run("no sockets means zero deliveries", func(t *testing.T) {
		r := NewRegistry()
		assert.Equal(t, 0, r.SendNotification("ghost", testNotification("ghost")))
	})

	t.Run("broadcast reaches all sessions", func(t *testing.T) {
		r := NewRegistry()
		a := dialRegistry(t, r, "s1")
		b := dialRegistry(t, r, "s2")
		readFrame(t, a)
		readFrame(t, b)

		require.Eventually(t, func() bool {
			return r.HasSession("s1") && r.HasSession("s2")
		}, time.Second, 10*time.Millisecond)

		delivered := r.BroadcastNotification(testNotification(""))
		assert.Equal(t, 2, delivered)
	})

	t.Run("disconnect empties the session", func(t *testing.T) {
		r := NewRegistry()
		sockDone := make(chan *Socket, 1)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ws, err := testUpgrader.Upgrade(w, req, nil)
			require.NoError(t, err)
			sock := NewSocket(ws)
			r.Connect("s1", sock)
			sockDone <- sock
		}))
		defer srv.Close()

		client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		require.NoError(t, err)
		_ = client.Close()

		sock := <-sockDone
		r.Disconnect("s1", sock)
		assert.False(t, r.HasSession("s1"))
		assert.Equal(t, 0, r.SessionCount())
	})

	t.Run("failed send evicts the socket", func(t *testing.T) {
		r := NewRegistry()
		client := dialRegistry(t, r, "s1")
		readFrame(t, client)

		require.Eventually(t, func() bool { return r.HasSession("s1") },
			time.Second, 10*time.Millisecond)

		// Kill the client side, then push until the server notices.
		_ = client.Close()
		require.Eventually(t, func() bool {
			r.SendNotification("s1", testNotification("s1"))
			return !r.HasSession("s1")
		}, 2*time.Second, 50*time.Millisecond)
	})
}
