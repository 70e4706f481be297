package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/models"
)

// Publisher emits frontend notifications onto the fanout exchange. Each
// public method accepts a specific typed payload — see pkg/models.
type Publisher struct {
	bus *bus.Publisher
}

// NewPublisher creates a notification publisher on a shared bus publisher.
func NewPublisher(b *bus.Publisher) *Publisher {
	return &Publisher{bus: b}
}

func (p *Publisher) publish(ctx context.Context, typ models.NotificationType, sessionID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	n := models.Notification{
		NotificationID: uuid.New(),
		Type:           typ,
		SessionID:      sessionID,
		Payload:        raw,
		Timestamp:      time.Now().UTC(),
	}
	return p.bus.PublishToFanout(ctx, bus.FrontendNotificationsExchange, &n)
}

// PublishNewMessage fans out an agent→user chat message.
func (p *Publisher) PublishNewMessage(ctx context.Context, payload models.NewMessagePayload) error {
	return p.publish(ctx, models.NotificationNewMessage, payload.SessionID, payload)
}

// PublishAgentStatus fans out an agent processing-state change. An empty
// sessionID broadcasts to every connected session.
func (p *Publisher) PublishAgentStatus(ctx context.Context, sessionID string, payload models.AgentStatusPayload) error {
	return p.publish(ctx, models.NotificationAgentStatus, sessionID, payload)
}

// PublishAgentActionStatus fans out a user-facing action description.
func (p *Publisher) PublishAgentActionStatus(ctx context.Context, sessionID string, payload models.AgentActionStatusPayload) error {
	return p.publish(ctx, models.NotificationAgentActionStatus, sessionID, payload)
}

// PublishAppInteraction fans out structured app data for a UI surface.
func (p *Publisher) PublishAppInteraction(ctx context.Context, sessionID string, payload models.AppInteractionPayload) error {
	return p.publish(ctx, models.NotificationAppInteraction, sessionID, payload)
}

// PublishSystemAlert fans out a system-originated alert.
func (p *Publisher) PublishSystemAlert(ctx context.Context, sessionID string, payload models.SystemAlertPayload) error {
	return p.publish(ctx, models.NotificationSystemAlert, sessionID, payload)
}

// PublishRaw fans out a pre-built notification. Used for call lifecycle UI
// events whose payload is assembled by the call manager.
func (p *Publisher) PublishRaw(ctx context.Context, typ models.NotificationType, sessionID string, payload any) error {
	return p.publish(ctx, typ, sessionID, payload)
}
