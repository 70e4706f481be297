package database_test

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/voxos-ai/voxos/pkg/callmgr"
	"github.com/voxos-ai/voxos/pkg/database"
	"github.com/voxos-ai/voxos/pkg/models"
	"github.com/voxos-ai/voxos/pkg/notify"
)

// newTestClient spins up a PostgreSQL testcontainer, runs the embedded
// migrations through database.NewClient, and returns the client.
func newTestClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("voxos_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	u, err := url.Parse(connStr)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	password, _ := u.User.Password()

	client, err := database.NewClient(ctx, database.Config{
		Host:            u.Hostname(),
		Port:            port,
		User:            u.User.Username(),
		Password:        password,
		Database:        "voxos_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDatabaseIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := newTestClient(t)
	ctx := context.Background()

	t.Run("health reports healthy", func(t *testing.T) {
		health, err := database.Health(ctx, client.DB())
		require.NoError(t, err)
		assert.Equal(t, "healthy", health.Status)
	})

	t.Run("pending notification store is idempotent per notification id", func(t *testing.T) {
		store := notify.NewPendingStore(client.DB())
		n := &models.Notification{
			NotificationID: uuid.New(),
			Type:           models.NotificationNewMessage,
			SessionID:      "s3",
			Payload:        []byte(`{"content":"hello"}`),
			Timestamp:      time.Now().UTC(),
		}

		require.NoError(t, store.Store(ctx, n))
		require.NoError(t, store.Store(ctx, n)) // duplicate is a no-op

		pending, err := store.ListUndelivered(ctx, "s3")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, n.NotificationID, pending[0].NotificationID)
		assert.Nil(t, pending[0].DeliveredAt)

		require.NoError(t, store.MarkDelivered(ctx, n.NotificationID))
		pending, err = store.ListUndelivered(ctx, "s3")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("pending notifications replay in created_at order", func(t *testing.T) {
		store := notify.NewPendingStore(client.DB())
		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			n := &models.Notification{
				NotificationID: uuid.New(),
				Type:           models.NotificationSystemAlert,
				SessionID:      "s4",
				Payload:        []byte(`{}`),
				Timestamp:      time.Now().UTC(),
			}
			require.NoError(t, store.Store(ctx, n))
			ids = append(ids, n.NotificationID)
			time.Sleep(5 * time.Millisecond)
		}

		pending, err := store.ListUndelivered(ctx, "s4")
		require.NoError(t, err)
		require.Len(t, pending, 3)
		for i, p := range pending {
			assert.Equal(t, ids[i], p.NotificationID)
		}
	})

	t.Run("delivery attempts increment on failure", func(t *testing.T) {
		store := notify.NewPendingStore(client.DB())
		n := &models.Notification{
			NotificationID: uuid.New(),
			Type:           models.NotificationTimerAlert,
			SessionID:      "s5",
			Payload:        []byte(`{}`),
			Timestamp:      time.Now().UTC(),
		}
		require.NoError(t, store.Store(ctx, n))
		require.NoError(t, store.IncrementAttempts(ctx, []uuid.UUID{n.NotificationID}))

		pending, err := store.ListUndelivered(ctx, "s5")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, 1, pending[0].DeliveryAttempts)
		assert.NotNil(t, pending[0].LastAttemptAt)
	})

	t.Run("sweep removes undelivered rows past the TTL", func(t *testing.T) {
		store := notify.NewPendingStore(client.DB())
		n := &models.Notification{
			NotificationID: uuid.New(),
			Type:           models.NotificationSystemAlert,
			SessionID:      "s6",
			Payload:        []byte(`{}`),
			Timestamp:      time.Now().UTC(),
		}
		require.NoError(t, store.Store(ctx, n))

		// Age the row behind the store's back.
		_, err := client.DB().ExecContext(ctx,
			`UPDATE pending_notifications SET created_at = now() - interval '8 days'
			 WHERE notification_id = $1`, n.NotificationID)
		require.NoError(t, err)

		removed, err := store.Sweep(ctx, 7*24*time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, int64(1))

		pending, err := store.ListUndelivered(ctx, "s6")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("call store persists and restores the call aggregate", func(t *testing.T) {
		store := callmgr.NewStore(client.DB())
		now := time.Now().UTC().Truncate(time.Microsecond)
		call := &models.Call{
			CallID:         uuid.New(),
			SessionID:      "s7",
			InitiatedBy:    "user",
			InitialTarget:  "primary_agent",
			CurrentAgentID: "primary_agent",
			Status:         models.CallStatusRingingOutbound,
			StartedAt:      now,
			RingingAt:      &now,
			Metadata:       map[string]any{"fast_mode": true},
			CallSource:     models.CallSourceWeb,
		}
		require.NoError(t, store.InsertCall(ctx, call))

		connected := now.Add(2 * time.Second)
		call.Status = models.CallStatusConnected
		call.ConnectedAt = &connected
		require.NoError(t, store.UpdateCall(ctx, call))
		require.NoError(t, store.AddParticipant(ctx, call.CallID, "primary_agent", models.RoleReceiver, ""))
		require.NoError(t, store.LogEvent(ctx, call.CallID, "call_answered", map[string]any{"answered_by": "primary_agent"}, "primary_agent"))
		require.NoError(t, store.AddTranscript(ctx, &models.CallTranscript{
			CallID:      call.CallID,
			SpeakerType: models.SpeakerUser,
			Content:     "Hello world.",
		}))

		restored, err := store.RestoreActiveCalls(ctx)
		require.NoError(t, err)
		var found *models.Call
		for _, r := range restored {
			if r.CallID == call.CallID {
				found = r
			}
		}
		require.NotNil(t, found)
		assert.Equal(t, models.CallStatusConnected, found.Status)
		assert.Equal(t, true, found.Metadata["fast_mode"])

		transcripts, err := store.ListTranscripts(ctx, call.CallID)
		require.NoError(t, err)
		require.Len(t, transcripts, 1)
		assert.Equal(t, "Hello world.", transcripts[0].Content)

		// Ended calls drop out of the restore set.
		ended := connected.Add(30 * time.Second)
		call.Status = models.CallStatusEnded
		call.EndedAt = &ended
		call.EndReason = models.EndReasonUserHangup
		call.EndedBy = "user"
		require.NoError(t, store.UpdateCall(ctx, call))

		restored, err = store.RestoreActiveCalls(ctx)
		require.NoError(t, err)
		for _, r := range restored {
			assert.NotEqual(t, call.CallID, r.CallID)
		}
	})

	t.Run("unique notification id is enforced at the schema level", func(t *testing.T) {
		id := uuid.New()
		_, err := client.DB().ExecContext(ctx, `
			INSERT INTO pending_notifications (session_id, notification_id, notification_type, notification_payload)
			VALUES ('x', $1, 'new_message', '{}')`, id)
		require.NoError(t, err)

		_, err = client.DB().ExecContext(ctx, `
			INSERT INTO pending_notifications (session_id, notification_id, notification_type, notification_payload)
			VALUES ('x', $1, 'new_message', '{}')`, id)
		assert.Error(t, err)
	})
}
