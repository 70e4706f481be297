package bus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the JSON message format on every queue and exchange.
// Payload is type-specific per NotificationType; unknown types must be
// forwarded untouched so that new producers don't break old consumers.
type Envelope struct {
	NotificationID   uuid.UUID       `json:"notification_id"`
	Timestamp        time.Time       `json:"timestamp"`
	RecipientAgentID string          `json:"recipient_agent_id,omitempty"`
	NotificationType string          `json:"notification_type"`
	Source           string          `json:"source"`
	Payload          json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope around an already-marshalable payload.
func NewEnvelope(notificationType, source, recipient string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		NotificationID:   uuid.New(),
		Timestamp:        time.Now().UTC(),
		RecipientAgentID: recipient,
		NotificationType: notificationType,
		Source:           source,
		Payload:          raw,
	}, nil
}
