// Package models defines the shared domain types persisted by the platform.
package models

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus is a call lifecycle state.
type CallStatus string

const (
	CallStatusRingingOutbound CallStatus = "ringing_outbound" // user calling agent
	CallStatusRingingInbound  CallStatus = "ringing_inbound"  // agent calling user
	CallStatusConnected       CallStatus = "connected"
	CallStatusOnHold          CallStatus = "on_hold"
	CallStatusTransferring    CallStatus = "transferring"
	CallStatusEnded           CallStatus = "ended"
)

// Active reports whether the status is non-terminal.
func (s CallStatus) Active() bool { return s != CallStatusEnded }

// Ringing reports whether the call is waiting to be answered in either
// direction.
func (s CallStatus) Ringing() bool {
	return s == CallStatusRingingOutbound || s == CallStatusRingingInbound
}

// CallEndReason records why a call terminated.
type CallEndReason string

const (
	EndReasonUserHangup       CallEndReason = "user_hangup"
	EndReasonAgentHangup      CallEndReason = "agent_hangup"
	EndReasonUserDeclined     CallEndReason = "user_declined"
	EndReasonAgentDeclined    CallEndReason = "agent_declined"
	EndReasonTransferComplete CallEndReason = "transfer_complete"
	EndReasonTimeout          CallEndReason = "timeout"
	EndReasonError            CallEndReason = "error"
	EndReasonDisconnected     CallEndReason = "disconnected"
)

// CallSource identifies the transport a call arrived on.
type CallSource string

const (
	CallSourceWeb            CallSource = "web"
	CallSourceTwilioInbound  CallSource = "twilio_inbound"
	CallSourceTwilioOutbound CallSource = "twilio_outbound"
)

// Call is a voice interaction bound to a session. A session has at most one
// non-ended call at a time.
type Call struct {
	CallID         uuid.UUID      `json:"call_id"`
	SessionID      string         `json:"session_id"`
	InitiatedBy    string         `json:"initiated_by"` // "user" or agent id
	InitialTarget  string         `json:"initial_target"`
	CurrentAgentID string         `json:"current_agent_id"`
	Status         CallStatus     `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	RingingAt      *time.Time     `json:"ringing_at,omitempty"`
	ConnectedAt    *time.Time     `json:"connected_at,omitempty"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	EndReason      CallEndReason  `json:"end_reason,omitempty"`
	EndedBy        string         `json:"ended_by,omitempty"`
	Metadata       map[string]any `json:"metadata"`

	// Telephony fields, empty for web calls.
	TwilioCallSID     string     `json:"twilio_call_sid,omitempty"`
	CallerPhoneNumber string     `json:"caller_phone_number,omitempty"`
	CallSource        CallSource `json:"call_source"`
}

// DurationSeconds returns the connected duration, or nil if the call never
// reached connected. For in-flight calls the duration runs to now.
func (c *Call) DurationSeconds() *int {
	if c.ConnectedAt == nil {
		return nil
	}
	end := time.Now().UTC()
	if c.EndedAt != nil {
		end = *c.EndedAt
	}
	d := int(end.Sub(*c.ConnectedAt).Seconds())
	return &d
}

// Clone returns a deep copy safe to hand outside the call manager's lock.
func (c *Call) Clone() *Call {
	cp := *c
	cp.Metadata = make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// ParticipantRole distinguishes the original receiver from transfer targets.
type ParticipantRole string

const (
	RoleReceiver    ParticipantRole = "receiver"
	RoleTransferred ParticipantRole = "transferred"
)

// CallParticipant is one agent's tenure on a call. At most one participant
// per call has a NULL LeftAt.
type CallParticipant struct {
	ID              int64           `json:"id"`
	CallID          uuid.UUID       `json:"call_id"`
	AgentID         string          `json:"agent_id"`
	Role            ParticipantRole `json:"role"`
	JoinedAt        time.Time       `json:"joined_at"`
	LeftAt          *time.Time      `json:"left_at,omitempty"`
	TransferredFrom string          `json:"transferred_from,omitempty"`
}

// CallEvent is an append-only audit entry. Rows are never mutated.
type CallEvent struct {
	ID          int64          `json:"id"`
	CallID      uuid.UUID      `json:"call_id"`
	EventType   string         `json:"event_type"`
	EventData   map[string]any `json:"event_data"`
	TriggeredBy string         `json:"triggered_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SpeakerType identifies who produced a transcript row.
type SpeakerType string

const (
	SpeakerUser  SpeakerType = "user"
	SpeakerAgent SpeakerType = "agent"
)

// CallTranscript is one utterance in a call, ordered by CreatedAt.
type CallTranscript struct {
	ID              int64       `json:"id"`
	CallID          uuid.UUID   `json:"call_id"`
	SpeakerType     SpeakerType `json:"speaker_type"`
	SpeakerID       string      `json:"speaker_id,omitempty"`
	Content         string      `json:"content"`
	AudioFilePath   string      `json:"audio_file_path,omitempty"`
	AudioDurationMS *int        `json:"audio_duration_ms,omitempty"`
	STTConfidence   *float64    `json:"stt_confidence,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}
