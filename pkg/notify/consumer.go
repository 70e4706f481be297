package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/models"
)

// Consumer binds this gateway instance to the frontend_notifications fanout
// exchange and routes each notification:
//
//  1. session set, local socket present → deliver live
//  2. session set, no local socket      → store pending (idempotent)
//  3. no session (broadcast)            → deliver to every local socket
//
// The broker message is acked once routed: store-and-forward, not broker
// redelivery, is the durability mechanism for offline sessions. Only a
// failed pending-store write returns an error, which nacks the message.
type Consumer struct {
	conn     *bus.Conn
	registry *Registry
	store    *PendingStore
}

// NewConsumer creates the fabric consumer.
func NewConsumer(conn *bus.Conn, registry *Registry, store *PendingStore) *Consumer {
	return &Consumer{conn: conn, registry: registry, store: store}
}

// Run consumes until ctx is cancelled. Blocks; run in its own goroutine.
func (c *Consumer) Run(ctx context.Context) {
	c.conn.ConsumeFanout(ctx, bus.FrontendNotificationsExchange, "gateway-notifications", c.handle)
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) error {
	var n models.Notification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		// Malformed payloads can never succeed; log and ack (handler
		// returning nil acks).
		slog.Error("Dropping malformed notification", "error", err)
		return nil
	}

	if n.Broadcast() {
		delivered := c.registry.BroadcastNotification(&n)
		slog.Debug("Broadcast notification", "type", n.Type, "delivered", delivered)
		return nil
	}

	if delivered := c.registry.SendNotification(n.SessionID, &n); delivered > 0 {
		slog.Debug("Delivered notification", "type", n.Type, "session_id", n.SessionID, "connections", delivered)
		return nil
	}

	// No local socket: persist for replay on reconnect. The unique
	// notification_id means a second instance racing us is a no-op.
	if err := c.store.Store(ctx, &n); err != nil {
		return fmt.Errorf("failed to store pending notification %s: %w", n.NotificationID, err)
	}
	slog.Debug("Stored pending notification", "type", n.Type, "session_id", n.SessionID)
	return nil
}
