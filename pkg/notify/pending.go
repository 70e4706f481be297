package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxos-ai/voxos/pkg/models"
)

// PendingStore is the durable store-and-forward layer. The UNIQUE
// notification_id column makes Store idempotent: every gateway instance
// receives every fanout message, and whichever instance stores first wins.
type PendingStore struct {
	db *sql.DB
}

// NewPendingStore creates a store over the shared database.
func NewPendingStore(db *sql.DB) *PendingStore {
	return &PendingStore{db: db}
}

// Store persists a notification for later delivery. A duplicate
// notification_id is silently ignored.
func (s *PendingStore) Store(ctx context.Context, n *models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification %s: %w", n.NotificationID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_notifications
			(session_id, notification_id, notification_type, notification_payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (notification_id) DO NOTHING`,
		n.SessionID, n.NotificationID, string(n.Type), payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store pending notification: %w", err)
	}
	return nil
}

// ListUndelivered returns the pending rows for a session in created_at
// order, which is the replay order the delivery contract promises.
func (s *PendingStore) ListUndelivered(ctx context.Context, sessionID string) ([]models.PendingNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, notification_id, notification_type, notification_payload,
		       created_at, delivered_at, delivery_attempts, last_attempt_at
		FROM pending_notifications
		WHERE session_id = $1 AND delivered_at IS NULL
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending notifications: %w", err)
	}
	defer rows.Close()

	var out []models.PendingNotification
	for rows.Next() {
		var p models.PendingNotification
		var payload []byte
		if err := rows.Scan(&p.ID, &p.SessionID, &p.NotificationID, &p.Type, &payload,
			&p.CreatedAt, &p.DeliveredAt, &p.DeliveryAttempts, &p.LastAttemptAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending notification: %w", err)
		}
		p.Payload = payload
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkDelivered stamps delivered_at on a row.
func (s *PendingStore) MarkDelivered(ctx context.Context, notificationID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_notifications SET delivered_at = $1 WHERE notification_id = $2`,
		time.Now().UTC(), notificationID)
	return err
}

// IncrementAttempts bumps the delivery counter on failed rows.
func (s *PendingStore) IncrementAttempts(ctx context.Context, notificationIDs []uuid.UUID) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	ids := make([]string, len(notificationIDs))
	for i, id := range notificationIDs {
		ids[i] = id.String()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_notifications
		SET delivery_attempts = delivery_attempts + 1, last_attempt_at = $1
		WHERE notification_id = ANY($2)`,
		time.Now().UTC(), ids)
	return err
}

// PendingCount returns the number of undelivered rows for a session.
func (s *PendingStore) PendingCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_notifications
		WHERE session_id = $1 AND delivered_at IS NULL`, sessionID).Scan(&n)
	return n, err
}

// Sweep removes rows past the retention policy: undelivered rows older than
// ttl, and delivered rows older than 24 h. Returns rows removed.
func (s *PendingStore) Sweep(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_notifications
		WHERE (delivered_at IS NULL AND created_at < $1)
		   OR (delivered_at IS NOT NULL AND delivered_at < $2)`,
		time.Now().UTC().Add(-ttl), time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep pending notifications: %w", err)
	}
	return res.RowsAffected()
}

// DeliverPending replays a session's stored notifications on reconnect.
// Each success is stamped delivered; each failure bumps the attempt counter.
// Returns the number delivered.
func DeliverPending(ctx context.Context, store *PendingStore, registry *Registry, sessionID string) int {
	pending, err := store.ListUndelivered(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to load pending notifications", "session_id", sessionID, "error", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	slog.Info("Replaying pending notifications", "session_id", sessionID, "count", len(pending))

	delivered := 0
	var failed []uuid.UUID
	for _, row := range pending {
		var n models.Notification
		if err := json.Unmarshal(row.Payload, &n); err != nil {
			slog.Error("Corrupt pending notification, marking delivered to skip",
				"notification_id", row.NotificationID, "error", err)
			_ = store.MarkDelivered(ctx, row.NotificationID)
			continue
		}

		if registry.SendNotification(sessionID, &n) > 0 {
			if err := store.MarkDelivered(ctx, row.NotificationID); err != nil {
				slog.Error("Failed to mark notification delivered", "notification_id", row.NotificationID, "error", err)
			}
			delivered++
		} else {
			failed = append(failed, row.NotificationID)
		}
	}

	if len(failed) > 0 {
		if err := store.IncrementAttempts(ctx, failed); err != nil {
			slog.Error("Failed to increment delivery attempts", "error", err)
		}
	}

	slog.Info("Pending replay complete", "session_id", sessionID, "delivered", delivered, "failed", len(failed))
	return delivered
}
