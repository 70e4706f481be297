package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationType discriminates the payload of a frontend notification.
type NotificationType string

const (
	NotificationNewMessage        NotificationType = "new_message"
	NotificationTimerAlert        NotificationType = "timer_alert"
	NotificationAgentStatus       NotificationType = "agent_status"
	NotificationAgentActionStatus NotificationType = "agent_action_status"
	NotificationAppInteraction    NotificationType = "app_interaction"
	NotificationSystemAlert       NotificationType = "system_alert"
	NotificationBrowserScreenshot NotificationType = "browser_screenshot"
)

// Notification is the envelope delivered to WebSocket clients through the
// fabric. An empty SessionID means broadcast to every connected session.
// Unknown notification types are forwarded untouched; only producers and
// consumers interpret payloads.
type Notification struct {
	NotificationID uuid.UUID        `json:"notification_id"`
	Type           NotificationType `json:"notification_type"`
	SessionID      string           `json:"session_id,omitempty"`
	UserID         string           `json:"user_id,omitempty"`
	Payload        json.RawMessage  `json:"payload"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Broadcast reports whether the notification targets every session.
func (n *Notification) Broadcast() bool { return n.SessionID == "" }

// PendingNotification is the durable shadow of a notification that could not
// be delivered live. NotificationID is the idempotency key: a fanout
// exchange hands every gateway instance the same message, and the
// conflict-do-nothing insert keeps the second instance from double-storing.
type PendingNotification struct {
	ID               int64           `json:"id"`
	SessionID        string          `json:"session_id"`
	NotificationID   uuid.UUID       `json:"notification_id"`
	Type             NotificationType `json:"notification_type"`
	Payload          json.RawMessage `json:"notification_payload"`
	CreatedAt        time.Time       `json:"created_at"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	DeliveryAttempts int             `json:"delivery_attempts"`
	LastAttemptAt    *time.Time      `json:"last_attempt_at,omitempty"`
}

// NewMessagePayload carries an agent→user chat message.
type NewMessagePayload struct {
	SessionID       string   `json:"session_id"`
	MessageID       int64    `json:"message_id"`
	AgentID         string   `json:"agent_id"`
	Content         string   `json:"content"`
	ContentType     string   `json:"content_type"`
	InputMode       string   `json:"input_mode,omitempty"`
	VoiceMessageID  *int64   `json:"voice_message_id,omitempty"`
	AudioFilePath   string   `json:"audio_file_path,omitempty"`
	AudioURL        string   `json:"audio_url,omitempty"`
	AudioDurationMS *int     `json:"audio_duration_ms,omitempty"`
	AttachmentIDs   []string `json:"attachment_ids,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// AgentStatusPayload reports an agent's processing state to the UI.
type AgentStatusPayload struct {
	AgentID         string    `json:"agent_id"`
	Status          string    `json:"status"`           // active, sleeping, off
	ProcessingState string    `json:"processing_state"` // idle, thinking, executing_tools
	Timestamp       time.Time `json:"timestamp"`
}

// AgentActionStatusPayload is a user-facing description of what an agent is
// currently doing.
type AgentActionStatusPayload struct {
	AgentID           string    `json:"agent_id"`
	SessionID         string    `json:"session_id,omitempty"`
	ActionDescription string    `json:"action_description"`
	Timestamp         time.Time `json:"timestamp"`
}

// AppInteractionPayload carries structured app data (e.g. a triggered
// reminder) for a UI surface.
type AppInteractionPayload struct {
	AgentID   string         `json:"agent_id"`
	AppName   string         `json:"app_name"`
	Action    string         `json:"action"`
	Result    map[string]any `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
}

// SystemAlertPayload is a reminder or other system-originated alert for an
// agent.
type SystemAlertPayload struct {
	AlertType      string `json:"alert_type"`
	ReminderID     string `json:"reminder_id,omitempty"`
	EventID        string `json:"event_id,omitempty"`
	EventTitle     string `json:"event_title,omitempty"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	TriggerTime    string `json:"trigger_time,omitempty"`
	EventStartTime string `json:"event_start_time,omitempty"`
	Kind           string `json:"type,omitempty"` // standalone, standalone_recurring, event_attached
}
