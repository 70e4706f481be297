// Package callmgr owns every in-flight call: state transitions, participant
// bookkeeping, timeout enforcement, and the notifications each transition
// emits to agents and the UI.
package callmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/models"
)

const (
	// RingingTimeout ends unanswered calls.
	RingingTimeout = 30 * time.Second
	// HoldTimeout ends calls left on hold.
	HoldTimeout = 5 * time.Minute
	// MaxCallDuration prevents zombie calls.
	MaxCallDuration = 30 * time.Minute
	// TimeoutCheckInterval is the monitor tick.
	TimeoutCheckInterval = 5 * time.Second

	source = "call_manager"
)

// ErrActiveCallExists is returned when a session already has a live call.
var ErrActiveCallExists = errors.New("session already has an active call")

// CallStore is the persistence surface the manager writes through.
// *Store implements it over PostgreSQL.
type CallStore interface {
	InsertCall(ctx context.Context, c *models.Call) error
	UpdateCall(ctx context.Context, c *models.Call) error
	LogEvent(ctx context.Context, callID uuid.UUID, eventType string, data map[string]any, triggeredBy string) error
	AddParticipant(ctx context.Context, callID uuid.UUID, agentID string, role models.ParticipantRole, transferredFrom string) error
	CloseParticipant(ctx context.Context, callID uuid.UUID, agentID string) error
	AddTranscript(ctx context.Context, t *models.CallTranscript) error
	ListTranscripts(ctx context.Context, callID uuid.UUID) ([]models.CallTranscript, error)
	RestoreActiveCalls(ctx context.Context) ([]*models.Call, error)
}

// Notifier is the broker surface the manager publishes through.
// *bus.Publisher implements it.
type Notifier interface {
	PublishToQueue(ctx context.Context, queue string, v any) error
	PublishEnvelopeToAgent(ctx context.Context, agentID, notificationType, source string, payload any) error
}

// CarrierControl terminates the carrier leg of a telephony call. Implemented
// by the telephony adapter's HTTP client; nil for deployments without
// telephony.
type CarrierControl interface {
	TerminateCall(ctx context.Context, twilioCallSID string) error
}

// UIEvent is a call lifecycle event delivered to the session's WebSockets.
type UIEvent struct {
	Type      string         `json:"type"`
	Call      *models.Call   `json:"call"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventCallback receives UI events. Callbacks must not block.
type EventCallback func(event *UIEvent)

// Manager is the authoritative owner of active calls. All operations take
// the manager lock around the read-modify-write; event emission happens
// after the database update so subscribers never observe an event whose
// state is not yet persisted.
type Manager struct {
	store     CallStore
	publisher Notifier
	carrier   CarrierControl

	mu          sync.Mutex
	activeCalls map[string]*models.Call // session_id → call

	cbMu      sync.Mutex
	callbacks map[string]EventCallback // keyed by session_id to prevent duplicates

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// NewManager creates a call manager. Call Restore before Start so that
// in-flight calls survive process restarts.
func NewManager(store CallStore, publisher Notifier, carrier CarrierControl) *Manager {
	return &Manager{
		store:       store,
		publisher:   publisher,
		carrier:     carrier,
		activeCalls: make(map[string]*models.Call),
		callbacks:   make(map[string]EventCallback),
	}
}

// Restore loads all non-terminal calls from the database into memory.
func (m *Manager) Restore(ctx context.Context) error {
	calls, err := m.store.RestoreActiveCalls(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	for _, c := range calls {
		m.activeCalls[c.SessionID] = c
	}
	m.mu.Unlock()

	if len(calls) > 0 {
		slog.Info("Restored active calls from database", "count", len(calls))
	}
	return nil
}

// RegisterEventCallback registers a UI event callback for a session.
// Re-registering replaces the previous callback.
func (m *Manager) RegisterEventCallback(sessionID string, cb EventCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks[sessionID] = cb
}

// UnregisterEventCallback removes a session's callback.
func (m *Manager) UnregisterEventCallback(sessionID string) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	delete(m.callbacks, sessionID)
}

func (m *Manager) emitEvent(eventType string, call *models.Call, data map[string]any) {
	event := &UIEvent{
		Type:      eventType,
		Call:      call.Clone(),
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	m.cbMu.Lock()
	cbs := make([]EventCallback, 0, len(m.callbacks))
	for _, cb := range m.callbacks {
		cbs = append(cbs, cb)
	}
	m.cbMu.Unlock()

	for _, cb := range cbs {
		cb(event)
	}
}

// logEvent is best-effort: a failed audit write never aborts the operation.
func (m *Manager) logEvent(ctx context.Context, call *models.Call, eventType string, data map[string]any, triggeredBy string) {
	if err := m.store.LogEvent(ctx, call.CallID, eventType, data, triggeredBy); err != nil {
		slog.Error("Failed to log call event", "call_id", call.CallID, "event", eventType, "error", err)
	}
}

// InitiateCall creates a call for a session. Rejects when the session
// already has a non-ended call.
func (m *Manager) InitiateCall(ctx context.Context, sessionID, initiatedBy, targetAgent string, fastMode bool) (*models.Call, error) {
	if targetAgent == "" {
		targetAgent = bus.PrimaryAgentID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.activeCalls[sessionID]; ok && existing.Status.Active() {
		return nil, fmt.Errorf("%w: session %s", ErrActiveCallExists, sessionID)
	}

	status := models.CallStatusRingingInbound
	if initiatedBy == "user" {
		status = models.CallStatusRingingOutbound
	}

	now := time.Now().UTC()
	metadata := map[string]any{}
	if fastMode {
		metadata["fast_mode"] = true
	}
	call := &models.Call{
		CallID:         uuid.New(),
		SessionID:      sessionID,
		InitiatedBy:    initiatedBy,
		InitialTarget:  targetAgent,
		CurrentAgentID: targetAgent,
		Status:         status,
		StartedAt:      now,
		RingingAt:      &now,
		Metadata:       metadata,
		CallSource:     models.CallSourceWeb,
	}

	m.activeCalls[sessionID] = call
	if err := m.store.InsertCall(ctx, call); err != nil {
		delete(m.activeCalls, sessionID)
		return nil, err
	}

	m.logEvent(ctx, call, "call_initiated", map[string]any{
		"initiated_by": initiatedBy,
		"target":       targetAgent,
	}, initiatedBy)

	m.notifyAgentIncomingCall(ctx, call)
	m.emitEvent("call_ringing", call, nil)

	slog.Info("Call initiated", "call_id", call.CallID, "initiated_by", initiatedBy, "target", targetAgent)
	return call.Clone(), nil
}

// CreateCarrierInboundCall registers an inbound phone call. Idempotent per
// carrier SID: repeated registration returns the existing call. Reusing the
// adapter-chosen call id keeps TTS routing consistent across services.
func (m *Manager) CreateCarrierInboundCall(ctx context.Context, twilioCallSID, callerNumber, targetAgent, callID string) (*models.Call, error) {
	if targetAgent == "" {
		targetAgent = bus.PrimaryAgentID
	}
	sessionID := "twilio_" + twilioCallSID

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.activeCalls {
		if existing.TwilioCallSID == twilioCallSID {
			slog.Warn("Carrier call already registered", "twilio_call_sid", twilioCallSID)
			return existing.Clone(), nil
		}
	}

	id := uuid.New()
	if callID != "" {
		parsed, err := uuid.Parse(callID)
		if err != nil {
			return nil, fmt.Errorf("invalid call_id %q: %w", callID, err)
		}
		id = parsed
	}

	now := time.Now().UTC()
	call := &models.Call{
		CallID:            id,
		SessionID:         sessionID,
		InitiatedBy:       "phone_user",
		InitialTarget:     targetAgent,
		CurrentAgentID:    targetAgent,
		Status:            models.CallStatusRingingInbound,
		StartedAt:         now,
		RingingAt:         &now,
		Metadata:          map[string]any{"phone_number": callerNumber},
		TwilioCallSID:     twilioCallSID,
		CallerPhoneNumber: callerNumber,
		CallSource:        models.CallSourceTwilioInbound,
	}

	m.activeCalls[sessionID] = call
	if err := m.store.InsertCall(ctx, call); err != nil {
		delete(m.activeCalls, sessionID)
		return nil, err
	}

	m.logEvent(ctx, call, "twilio_call_initiated", map[string]any{
		"twilio_call_sid":     twilioCallSID,
		"caller_phone_number": callerNumber,
	}, "phone_user")

	m.notifyAgentIncomingCall(ctx, call)
	m.emitEvent("call_ringing", call, nil)

	slog.Info("Carrier inbound call created", "call_id", call.CallID)
	return call.Clone(), nil
}

// CreateCarrierOutboundCall registers an agent-originated phone call.
func (m *Manager) CreateCarrierOutboundCall(ctx context.Context, sessionID, twilioCallSID, toNumber, targetAgent string) (*models.Call, error) {
	if targetAgent == "" {
		targetAgent = bus.PrimaryAgentID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	call := &models.Call{
		CallID:            uuid.New(),
		SessionID:         sessionID,
		InitiatedBy:       targetAgent,
		InitialTarget:     "phone_user",
		CurrentAgentID:    targetAgent,
		Status:            models.CallStatusRingingOutbound,
		StartedAt:         now,
		RingingAt:         &now,
		Metadata:          map[string]any{"phone_number": toNumber},
		TwilioCallSID:     twilioCallSID,
		CallerPhoneNumber: toNumber,
		CallSource:        models.CallSourceTwilioOutbound,
	}

	m.activeCalls[sessionID] = call
	if err := m.store.InsertCall(ctx, call); err != nil {
		delete(m.activeCalls, sessionID)
		return nil, err
	}

	m.logEvent(ctx, call, "twilio_outbound_initiated", map[string]any{
		"twilio_call_sid": twilioCallSID,
		"to_phone_number": toNumber,
	}, targetAgent)
	m.emitEvent("call_ringing", call, nil)

	slog.Info("Carrier outbound call created", "call_id", call.CallID)
	return call.Clone(), nil
}

// AnswerCall transitions a ringing call to connected. Idempotent: answering
// an already-connected call succeeds, and when the answerer is an agent the
// current handler is updated. This covers carrier calls where the media
// stream connects before the agent explicitly answers.
func (m *Manager) AnswerCall(ctx context.Context, callID uuid.UUID, answeredBy string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.findByID(callID)
	if call == nil {
		slog.Warn("Answer for unknown call", "call_id", callID)
		return false
	}

	if call.Status == models.CallStatusConnected {
		if answeredBy != "user" && call.CurrentAgentID != answeredBy {
			call.CurrentAgentID = answeredBy
			if err := m.store.UpdateCall(ctx, call); err != nil {
				slog.Error("Failed to update call handler", "call_id", callID, "error", err)
			}
		}
		return true
	}

	if call.Status == models.CallStatusEnded {
		slog.Warn("Answer for ended call", "call_id", callID)
		return false
	}
	if !call.Status.Ringing() {
		slog.Warn("Answer in unexpected status", "call_id", callID, "status", call.Status)
		return false
	}

	now := time.Now().UTC()
	call.Status = models.CallStatusConnected
	call.ConnectedAt = &now
	call.CurrentAgentID = answeredBy

	if err := m.store.UpdateCall(ctx, call); err != nil {
		slog.Error("Failed to persist answer", "call_id", callID, "error", err)
	}
	m.logEvent(ctx, call, "call_answered", map[string]any{"answered_by": answeredBy}, answeredBy)

	if err := m.store.AddParticipant(ctx, call.CallID, answeredBy, models.RoleReceiver, ""); err != nil {
		slog.Error("Failed to add participant", "call_id", callID, "error", err)
	}

	m.emitEvent("call_connected", call, nil)

	// An agent-initiated call answered by the user: tell the originator.
	if call.InitiatedBy != "user" && answeredBy == "user" {
		m.notifyAgent(ctx, call.InitiatedBy, "call_answered", map[string]any{
			"call_id":      call.CallID.String(),
			"session_id":   call.SessionID,
			"answered_by":  "user",
			"content_type": "call",
		})
	}

	slog.Info("Call answered", "call_id", call.CallID, "answered_by", answeredBy)
	return true
}

// DeclineCall rejects a ringing call.
func (m *Manager) DeclineCall(ctx context.Context, callID uuid.UUID, declinedBy, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.findByID(callID)
	if call == nil || !call.Status.Ringing() {
		return false
	}

	endReason := models.EndReasonAgentDeclined
	if declinedBy == "user" {
		endReason = models.EndReasonUserDeclined
	}

	now := time.Now().UTC()
	call.Status = models.CallStatusEnded
	call.EndedAt = &now
	call.EndReason = endReason
	call.EndedBy = declinedBy

	if err := m.store.UpdateCall(ctx, call); err != nil {
		slog.Error("Failed to persist decline", "call_id", callID, "error", err)
	}
	m.logEvent(ctx, call, "call_declined", map[string]any{
		"declined_by": declinedBy,
		"reason":      reason,
	}, declinedBy)

	delete(m.activeCalls, call.SessionID)
	m.emitEvent("call_ended", call, map[string]any{"reason": "declined"})

	slog.Info("Call declined", "call_id", call.CallID, "declined_by", declinedBy)
	return true
}

// EndCall terminates a call in any non-ended state. The default reason is
// derived from who ended it.
func (m *Manager) EndCall(ctx context.Context, callID uuid.UUID, endedBy string, reason models.CallEndReason) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endCallLocked(ctx, callID, endedBy, reason)
}

func (m *Manager) endCallLocked(ctx context.Context, callID uuid.UUID, endedBy string, reason models.CallEndReason) bool {
	call := m.findByID(callID)
	if call == nil || call.Status == models.CallStatusEnded {
		return false
	}

	if reason == "" {
		if endedBy == "user" {
			reason = models.EndReasonUserHangup
		} else {
			reason = models.EndReasonAgentHangup
		}
	}

	now := time.Now().UTC()
	call.Status = models.CallStatusEnded
	call.EndedAt = &now
	call.EndReason = reason
	call.EndedBy = endedBy

	if err := m.store.UpdateCall(ctx, call); err != nil {
		slog.Error("Failed to persist end", "call_id", callID, "error", err)
	}
	m.logEvent(ctx, call, "call_ended", map[string]any{
		"ended_by": endedBy,
		"reason":   string(reason),
	}, endedBy)

	if err := m.store.CloseParticipant(ctx, call.CallID, call.CurrentAgentID); err != nil {
		slog.Error("Failed to close participant", "call_id", callID, "error", err)
	}

	delete(m.activeCalls, call.SessionID)
	m.emitEvent("call_ended", call, map[string]any{"reason": string(reason)})

	duration := 0
	if d := call.DurationSeconds(); d != nil {
		duration = *d
	}
	m.notifyAgent(ctx, call.CurrentAgentID, "call_ended", map[string]any{
		"call_id":          call.CallID.String(),
		"session_id":       call.SessionID,
		"ended_by":         call.EndedBy,
		"end_reason":       string(call.EndReason),
		"duration_seconds": duration,
		"content_type":     "call",
		"_instruction":     "The call has ended. You are no longer on a call. Use send_user_message (not speak) for any follow-up.",
	})

	// Tell the bridge to tear down its STT/TTS session.
	env, err := bus.NewEnvelope("call_ended", source, "voice_bridge", map[string]any{
		"call_id":    call.CallID.String(),
		"session_id": call.SessionID,
	})
	if err == nil {
		if err := m.publisher.PublishToQueue(ctx, bus.CallAudioQueue, env); err != nil {
			slog.Error("Failed to notify bridge of call end", "call_id", callID, "error", err)
		}
	}

	// Terminate the carrier leg for phone calls.
	if call.TwilioCallSID != "" && m.carrier != nil {
		if err := m.carrier.TerminateCall(ctx, call.TwilioCallSID); err != nil {
			slog.Error("Failed to terminate carrier call", "call_id", callID, "error", err)
		}
	}

	slog.Info("Call ended", "call_id", call.CallID, "ended_by", endedBy, "reason", reason)
	return true
}

// HoldCall pauses a connected call. reason is "manual" or
// "user_disconnected".
func (m *Manager) HoldCall(ctx context.Context, callID uuid.UUID, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.findByID(callID)
	if call == nil || call.Status != models.CallStatusConnected {
		return false
	}

	call.Status = models.CallStatusOnHold
	call.Metadata["hold_started_at"] = time.Now().UTC().Format(time.RFC3339)
	call.Metadata["hold_reason"] = reason

	if err := m.store.UpdateCall(ctx, call); err != nil {
		slog.Error("Failed to persist hold", "call_id", callID, "error", err)
	}
	m.logEvent(ctx, call, "call_hold", map[string]any{"reason": reason}, call.CurrentAgentID)
	m.emitEvent("call_on_hold", call, map[string]any{"reason": reason})

	instruction := "The call has been put on hold. Do NOT use the speak tool while on hold."
	if reason == "user_disconnected" {
		instruction = "The user has disconnected. The call is on hold. If they don't reconnect within 5 minutes, the call will automatically end. Do NOT use the speak tool while on hold."
	}
	m.notifyAgent(ctx, call.CurrentAgentID, "call_on_hold", map[string]any{
		"call_id":      call.CallID.String(),
		"session_id":   call.SessionID,
		"reason":       reason,
		"content_type": "call",
		"_instruction": instruction,
	})

	slog.Info("Call on hold", "call_id", call.CallID, "reason", reason)
	return true
}

// ResumeCall returns a held call to connected.
func (m *Manager) ResumeCall(ctx context.Context, callID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.findByID(callID)
	if call == nil || call.Status != models.CallStatusOnHold {
		return false
	}

	previousReason, _ := call.Metadata["hold_reason"].(string)
	if previousReason == "" {
		previousReason = "manual"
	}
	call.Status = models.CallStatusConnected
	delete(call.Metadata, "hold_started_at")
	delete(call.Metadata, "hold_reason")

	if err := m.store.UpdateCall(ctx, call); err != nil {
		slog.Error("Failed to persist resume", "call_id", callID, "error", err)
	}
	m.logEvent(ctx, call, "call_resumed", map[string]any{"previous_hold_reason": previousReason}, call.CurrentAgentID)
	m.emitEvent("call_connected", call, nil)

	instruction := "The call has resumed. You can now use the speak tool again."
	if previousReason == "user_disconnected" {
		instruction = "The user has reconnected. The call has resumed. You can now use the speak tool again."
	}
	m.notifyAgent(ctx, call.CurrentAgentID, "call_resumed", map[string]any{
		"call_id":              call.CallID.String(),
		"session_id":           call.SessionID,
		"previous_hold_reason": previousReason,
		"content_type":         "call",
		"_instruction":         instruction,
	})

	slog.Info("Call resumed", "call_id", call.CallID)
	return true
}

// TransferCall hands a connected call from one agent to another. Only the
// current handler may transfer. The transferring state is transient: the
// call returns to connected within the same locked operation.
func (m *Manager) TransferCall(ctx context.Context, callID uuid.UUID, fromAgent, toAgent, announcement string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.findByID(callID)
	if call == nil || call.Status != models.CallStatusConnected {
		return false
	}
	if call.CurrentAgentID != fromAgent {
		slog.Warn("Transfer denied: not current handler",
			"call_id", callID, "from_agent", fromAgent, "current", call.CurrentAgentID)
		return false
	}

	call.Status = models.CallStatusTransferring
	if err := m.store.UpdateCall(ctx, call); err != nil {
		slog.Error("Failed to persist transferring state", "call_id", callID, "error", err)
	}
	m.logEvent(ctx, call, "call_transferring", map[string]any{
		"from_agent": fromAgent,
		"to_agent":   toAgent,
	}, fromAgent)
	m.emitEvent("call_transferring", call, map[string]any{
		"from_agent":   fromAgent,
		"to_agent":     toAgent,
		"announcement": announcement,
	})

	if err := m.store.CloseParticipant(ctx, call.CallID, fromAgent); err != nil {
		slog.Error("Failed to close outgoing participant", "call_id", callID, "error", err)
	}

	call.CurrentAgentID = toAgent
	call.Status = models.CallStatusConnected

	if err := m.store.AddParticipant(ctx, call.CallID, toAgent, models.RoleTransferred, fromAgent); err != nil {
		slog.Error("Failed to add incoming participant", "call_id", callID, "error", err)
	}

	m.notifyAgent(ctx, toAgent, "call_transferred", map[string]any{
		"call_id":          call.CallID.String(),
		"session_id":       call.SessionID,
		"transferred_from": fromAgent,
		"announcement":     announcement,
		"content_type":     "call",
	})

	if err := m.store.UpdateCall(ctx, call); err != nil {
		slog.Error("Failed to persist transfer", "call_id", callID, "error", err)
	}
	m.emitEvent("call_connected", call, map[string]any{"transferred_from": fromAgent})

	slog.Info("Call transferred", "call_id", call.CallID, "from", fromAgent, "to", toAgent)
	return true
}

// RecallPhone transfers the call from its current handler back to byAgent.
func (m *Manager) RecallPhone(ctx context.Context, callID uuid.UUID, byAgent string) bool {
	m.mu.Lock()
	call := m.findByID(callID)
	if call == nil {
		m.mu.Unlock()
		return false
	}
	current := call.CurrentAgentID
	m.mu.Unlock()

	return m.TransferCall(ctx, callID, current, byAgent, "")
}

// GetActiveCall returns the session's non-ended call, or nil.
func (m *Manager) GetActiveCall(sessionID string) *models.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if call, ok := m.activeCalls[sessionID]; ok && call.Status.Active() {
		return call.Clone()
	}
	return nil
}

// GetCallByID returns an active call by id, or nil.
func (m *Manager) GetCallByID(callID uuid.UUID) *models.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if call := m.findByID(callID); call != nil {
		return call.Clone()
	}
	return nil
}

// GetCallByCarrierSID returns the active call for a carrier SID, or nil.
func (m *Manager) GetCallByCarrierSID(twilioCallSID string) *models.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.activeCalls {
		if call.TwilioCallSID == twilioCallSID {
			return call.Clone()
		}
	}
	return nil
}

// GetCallForAgent returns the connected call an agent is handling, or nil.
func (m *Manager) GetCallForAgent(agentID string) *models.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.activeCalls {
		if call.CurrentAgentID == agentID && call.Status == models.CallStatusConnected {
			return call.Clone()
		}
	}
	return nil
}

// IsOnCall reports whether the session has a connected call.
func (m *Manager) IsOnCall(sessionID string) bool {
	call := m.GetActiveCall(sessionID)
	return call != nil && call.Status == models.CallStatusConnected
}

// AddTranscript persists an utterance for a call.
func (m *Manager) AddTranscript(ctx context.Context, t *models.CallTranscript) error {
	return m.store.AddTranscript(ctx, t)
}

// ListTranscripts returns a call's transcript rows in order.
func (m *Manager) ListTranscripts(ctx context.Context, callID uuid.UUID) ([]models.CallTranscript, error) {
	return m.store.ListTranscripts(ctx, callID)
}

func (m *Manager) findByID(callID uuid.UUID) *models.Call {
	for _, call := range m.activeCalls {
		if call.CallID == callID {
			return call
		}
	}
	return nil
}

func (m *Manager) notifyAgentIncomingCall(ctx context.Context, call *models.Call) {
	m.notifyAgent(ctx, call.CurrentAgentID, "incoming_call", map[string]any{
		"call_id":             call.CallID.String(),
		"session_id":          call.SessionID,
		"initiated_by":        call.InitiatedBy,
		"content_type":        "call",
		"twilio_call_sid":     call.TwilioCallSID,
		"caller_phone_number": call.CallerPhoneNumber,
	})
}

// notifyAgent publishes after the state change has been persisted, so a
// crash before publish leaves the database as the source of truth.
func (m *Manager) notifyAgent(ctx context.Context, agentID, notificationType string, payload map[string]any) {
	if err := m.publisher.PublishEnvelopeToAgent(ctx, agentID, notificationType, source, payload); err != nil {
		slog.Error("Failed to notify agent", "agent_id", agentID, "type", notificationType, "error", err)
	}
}
