package models

import "time"

// ConversationMessage is one turn in a session's text conversation.
type ConversationMessage struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Sender      string    `json:"sender"` // "user" or agent id
	Content     string    `json:"content"`
	ContentType string    `json:"content_type"`
	InputMode   string    `json:"input_mode,omitempty"` // text or voice
	CreatedAt   time.Time `json:"created_at"`
}

// VoiceMessage is stored audio attached to a conversation turn. The file
// lives under the shared audio volume and is served only via signed URLs.
type VoiceMessage struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	MessageID       *int64    `json:"message_id,omitempty"`
	FilePath        string    `json:"file_path"`
	DurationMS      *int      `json:"duration_ms,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// AllowedPhoneNumber is a whitelist entry for inbound telephony.
type AllowedPhoneNumber struct {
	PhoneNumber string    `json:"phone_number"` // E.164
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
