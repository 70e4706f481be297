package callmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxos-ai/voxos/pkg/models"
)

// fakeStore records persistence calls in memory.
type fakeStore struct {
	mu           sync.Mutex
	calls        map[uuid.UUID]*models.Call
	events       []string
	participants []models.CallParticipant
	transcripts  []models.CallTranscript
	restored     []*models.Call
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: make(map[uuid.UUID]*models.Call)}
}

func (f *fakeStore) InsertCall(_ context.Context, c *models.Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[c.CallID] = c.Clone()
	return nil
}

func (f *fakeStore) UpdateCall(_ context.Context, c *models.Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[c.CallID] = c.Clone()
	return nil
}

func (f *fakeStore) LogEvent(_ context.Context, _ uuid.UUID, eventType string, _ map[string]any, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeStore) AddParticipant(_ context.Context, callID uuid.UUID, agentID string, role models.ParticipantRole, transferredFrom string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	f.participants = append(f.participants, models.CallParticipant{
		CallID: callID, AgentID: agentID, Role: role,
		JoinedAt: now, TransferredFrom: transferredFrom,
	})
	return nil
}

func (f *fakeStore) CloseParticipant(_ context.Context, callID uuid.UUID, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.participants {
		p := &f.participants[i]
		if p.CallID == callID && p.AgentID == agentID && p.LeftAt == nil {
			now := time.Now().UTC()
			p.LeftAt = &now
		}
	}
	return nil
}

func (f *fakeStore) AddTranscript(_ context.Context, t *models.CallTranscript) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, *t)
	return nil
}

func (f *fakeStore) ListTranscripts(_ context.Context, callID uuid.UUID) ([]models.CallTranscript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CallTranscript
	for _, t := range f.transcripts {
		if t.CallID == callID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) RestoreActiveCalls(_ context.Context) ([]*models.Call, error) {
	return f.restored, nil
}

func (f *fakeStore) openParticipants(callID uuid.UUID) []models.CallParticipant {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CallParticipant
	for _, p := range f.participants {
		if p.CallID == callID && p.LeftAt == nil {
			out = append(out, p)
		}
	}
	return out
}

// fakeNotifier records published messages.
type fakeNotifier struct {
	mu     sync.Mutex
	queued []string // queue names
	agent  []string // "<agent>:<type>"
}

func (f *fakeNotifier) PublishToQueue(_ context.Context, queue string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, queue)
	return nil
}

func (f *fakeNotifier) PublishEnvelopeToAgent(_ context.Context, agentID, notificationType, _ string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agent = append(f.agent, agentID+":"+notificationType)
	return nil
}

func (f *fakeNotifier) agentNotifications() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.agent...)
}

func newTestManager() (*Manager, *fakeStore, *fakeNotifier) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	return NewManager(store, notifier, nil), store, notifier
}

func TestInitiateCall(t *testing.T) {
	ctx := context.Background()

	t.Run("user initiated call rings outbound", func(t *testing.T) {
		m, _, notifier := newTestManager()

		call, err := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.NoError(t, err)
		assert.Equal(t, models.CallStatusRingingOutbound, call.Status)
		assert.Equal(t, "primary_agent", call.CurrentAgentID)
		assert.NotNil(t, call.RingingAt)
		assert.Nil(t, call.ConnectedAt)
		assert.Contains(t, notifier.agentNotifications(), "primary_agent:incoming_call")
	})

	t.Run("agent initiated call rings inbound", func(t *testing.T) {
		m, _, _ := newTestManager()

		call, err := m.InitiateCall(ctx, "s1", "research_agent", "primary_agent", false)
		require.NoError(t, err)
		assert.Equal(t, models.CallStatusRingingInbound, call.Status)
	})

	t.Run("rejects second active call for session", func(t *testing.T) {
		m, _, _ := newTestManager()

		_, err := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.NoError(t, err)

		_, err = m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		assert.ErrorIs(t, err, ErrActiveCallExists)
	})

	t.Run("allows new call after previous ended", func(t *testing.T) {
		m, _, _ := newTestManager()

		call, err := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.NoError(t, err)
		require.True(t, m.EndCall(ctx, call.CallID, "user", ""))

		_, err = m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		assert.NoError(t, err)
	})
}

func TestAnswerCall(t *testing.T) {
	ctx := context.Background()

	t.Run("transitions ringing to connected with receiver participant", func(t *testing.T) {
		m, store, _ := newTestManager()
		call, err := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.NoError(t, err)

		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))

		answered := m.GetCallByID(call.CallID)
		require.NotNil(t, answered)
		assert.Equal(t, models.CallStatusConnected, answered.Status)
		assert.NotNil(t, answered.ConnectedAt)

		open := store.openParticipants(call.CallID)
		require.Len(t, open, 1)
		assert.Equal(t, models.RoleReceiver, open[0].Role)
	})

	t.Run("idempotent when already connected", func(t *testing.T) {
		m, _, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))

		before := m.GetCallByID(call.CallID)
		require.True(t, m.AnswerCall(ctx, call.CallID, "user"))
		after := m.GetCallByID(call.CallID)

		assert.Equal(t, before.Status, after.Status)
		assert.Equal(t, before.ConnectedAt.Unix(), after.ConnectedAt.Unix())
		assert.Equal(t, before.CurrentAgentID, after.CurrentAgentID)
	})

	t.Run("agent re-answer updates current handler", func(t *testing.T) {
		m, _, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))

		require.True(t, m.AnswerCall(ctx, call.CallID, "research_agent"))
		assert.Equal(t, "research_agent", m.GetCallByID(call.CallID).CurrentAgentID)
	})

	t.Run("rejects answer on ended call", func(t *testing.T) {
		m, _, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.True(t, m.EndCall(ctx, call.CallID, "user", ""))

		assert.False(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))
	})

	t.Run("notifies originator when user answers agent call", func(t *testing.T) {
		m, _, notifier := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "research_agent", "primary_agent", false)

		require.True(t, m.AnswerCall(ctx, call.CallID, "user"))
		assert.Contains(t, notifier.agentNotifications(), "research_agent:call_answered")
	})
}

func TestDeclineCall(t *testing.T) {
	ctx := context.Background()

	t.Run("user decline sets user_declined", func(t *testing.T) {
		m, store, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)

		require.True(t, m.DeclineCall(ctx, call.CallID, "user", "busy"))
		assert.Equal(t, models.EndReasonUserDeclined, store.calls[call.CallID].EndReason)
		assert.Nil(t, m.GetActiveCall("s1"))
	})

	t.Run("rejects decline when connected", func(t *testing.T) {
		m, _, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))

		assert.False(t, m.DeclineCall(ctx, call.CallID, "primary_agent", ""))
	})
}

func TestEndCall(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults reason from ended_by", func(t *testing.T) {
		m, store, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))

		require.True(t, m.EndCall(ctx, call.CallID, "primary_agent", ""))
		assert.Equal(t, models.EndReasonAgentHangup, store.calls[call.CallID].EndReason)
	})

	t.Run("closes current participant and notifies bridge", func(t *testing.T) {
		m, store, notifier := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))

		require.True(t, m.EndCall(ctx, call.CallID, "user", ""))
		assert.Empty(t, store.openParticipants(call.CallID))
		assert.Contains(t, notifier.queued, "call_audio_queue")
		assert.Contains(t, notifier.agentNotifications(), "primary_agent:call_ended")
	})

	t.Run("second end is rejected", func(t *testing.T) {
		m, _, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.True(t, m.EndCall(ctx, call.CallID, "user", ""))
		assert.False(t, m.EndCall(ctx, call.CallID, "user", ""))
	})
}

func TestHoldResume(t *testing.T) {
	ctx := context.Background()

	t.Run("hold then resume returns to connected", func(t *testing.T) {
		m, _, notifier := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))

		require.True(t, m.HoldCall(ctx, call.CallID, "manual"))
		held := m.GetCallByID(call.CallID)
		assert.Equal(t, models.CallStatusOnHold, held.Status)
		assert.Contains(t, held.Metadata, "hold_started_at")
		assert.Contains(t, notifier.agentNotifications(), "primary_agent:call_on_hold")

		require.True(t, m.ResumeCall(ctx, call.CallID))
		resumed := m.GetCallByID(call.CallID)
		assert.Equal(t, models.CallStatusConnected, resumed.Status)
		assert.NotContains(t, resumed.Metadata, "hold_started_at")
		assert.Contains(t, notifier.agentNotifications(), "primary_agent:call_resumed")
	})

	t.Run("hold requires connected", func(t *testing.T) {
		m, _, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		assert.False(t, m.HoldCall(ctx, call.CallID, "manual"))
	})

	t.Run("resume requires on_hold", func(t *testing.T) {
		m, _, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))
		assert.False(t, m.ResumeCall(ctx, call.CallID))
	})

	t.Run("answer hold resume keeps participant bookkeeping intact", func(t *testing.T) {
		m, store, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))
		require.True(t, m.HoldCall(ctx, call.CallID, "manual"))
		require.True(t, m.ResumeCall(ctx, call.CallID))

		assert.Equal(t, models.CallStatusConnected, m.GetCallByID(call.CallID).Status)
		assert.Len(t, store.openParticipants(call.CallID), 1)
	})
}

func TestTransferCall(t *testing.T) {
	ctx := context.Background()

	t.Run("closes old participant and opens transferred one", func(t *testing.T) {
		m, store, notifier := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "agent_a", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "agent_a"))

		require.True(t, m.TransferCall(ctx, call.CallID, "agent_a", "agent_b", "handing off"))

		transferred := m.GetCallByID(call.CallID)
		assert.Equal(t, models.CallStatusConnected, transferred.Status)
		assert.Equal(t, "agent_b", transferred.CurrentAgentID)

		open := store.openParticipants(call.CallID)
		require.Len(t, open, 1)
		assert.Equal(t, "agent_b", open[0].AgentID)
		assert.Equal(t, models.RoleTransferred, open[0].Role)
		assert.Equal(t, "agent_a", open[0].TransferredFrom)

		assert.Contains(t, notifier.agentNotifications(), "agent_b:call_transferred")
	})

	t.Run("only current handler may transfer", func(t *testing.T) {
		m, _, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "agent_a", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "agent_a"))

		assert.False(t, m.TransferCall(ctx, call.CallID, "agent_b", "agent_c", ""))
	})

	t.Run("recall transfers back from current handler", func(t *testing.T) {
		m, _, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s1", "user", "agent_a", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "agent_a"))
		require.True(t, m.TransferCall(ctx, call.CallID, "agent_a", "agent_b", ""))

		require.True(t, m.RecallPhone(ctx, call.CallID, "agent_a"))
		assert.Equal(t, "agent_a", m.GetCallByID(call.CallID).CurrentAgentID)
	})
}

func TestCarrierCalls(t *testing.T) {
	ctx := context.Background()

	t.Run("inbound registration is idempotent per SID", func(t *testing.T) {
		m, _, _ := newTestManager()

		first, err := m.CreateCarrierInboundCall(ctx, "CA123", "+15551234567", "", "")
		require.NoError(t, err)
		second, err := m.CreateCarrierInboundCall(ctx, "CA123", "+15551234567", "", "")
		require.NoError(t, err)

		assert.Equal(t, first.CallID, second.CallID)
		assert.Equal(t, "twilio_CA123", first.SessionID)
		assert.Equal(t, models.CallSourceTwilioInbound, first.CallSource)
	})

	t.Run("adapter supplied call id is reused", func(t *testing.T) {
		m, _, _ := newTestManager()
		id := uuid.New()

		call, err := m.CreateCarrierInboundCall(ctx, "CA456", "+15551234567", "", id.String())
		require.NoError(t, err)
		assert.Equal(t, id, call.CallID)
	})

	t.Run("lookup by carrier SID", func(t *testing.T) {
		m, _, _ := newTestManager()
		_, err := m.CreateCarrierInboundCall(ctx, "CA789", "+15551234567", "", "")
		require.NoError(t, err)

		found := m.GetCallByCarrierSID("CA789")
		require.NotNil(t, found)
		assert.Equal(t, "CA789", found.TwilioCallSID)
		assert.Nil(t, m.GetCallByCarrierSID("CA000"))
	})
}

func TestTimeouts(t *testing.T) {
	ctx := context.Background()

	t.Run("ringing past 30s ends with timeout", func(t *testing.T) {
		m, store, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s2", "user", "primary_agent", false)

		m.mu.Lock()
		stale := time.Now().UTC().Add(-31 * time.Second)
		m.activeCalls["s2"].RingingAt = &stale
		m.mu.Unlock()

		m.checkTimeouts(ctx)

		ended := store.calls[call.CallID]
		assert.Equal(t, models.CallStatusEnded, ended.Status)
		assert.Equal(t, models.EndReasonTimeout, ended.EndReason)
		assert.Equal(t, "system", ended.EndedBy)
	})

	t.Run("ringing under 30s survives the tick", func(t *testing.T) {
		m, _, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s2", "user", "primary_agent", false)

		m.checkTimeouts(ctx)
		assert.Equal(t, models.CallStatusRingingOutbound, m.GetCallByID(call.CallID).Status)
	})

	t.Run("hold past 5m ends with timeout", func(t *testing.T) {
		m, store, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s2", "user", "primary_agent", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))
		require.True(t, m.HoldCall(ctx, call.CallID, "user_disconnected"))

		m.mu.Lock()
		m.activeCalls["s2"].Metadata["hold_started_at"] =
			time.Now().UTC().Add(-6 * time.Minute).Format(time.RFC3339)
		m.mu.Unlock()

		m.checkTimeouts(ctx)
		assert.Equal(t, models.EndReasonTimeout, store.calls[call.CallID].EndReason)
	})

	t.Run("connected past max duration ends with timeout", func(t *testing.T) {
		m, store, _ := newTestManager()
		call, _ := m.InitiateCall(ctx, "s2", "user", "primary_agent", false)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))

		m.mu.Lock()
		stale := time.Now().UTC().Add(-31 * time.Minute)
		m.activeCalls["s2"].ConnectedAt = &stale
		m.mu.Unlock()

		m.checkTimeouts(ctx)
		assert.Equal(t, models.EndReasonTimeout, store.calls[call.CallID].EndReason)
	})
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("restored calls participate in operations", func(t *testing.T) {
		store := newFakeStore()
		notifier := &fakeNotifier{}
		now := time.Now().UTC()
		callID := uuid.New()
		store.restored = []*models.Call{{
			CallID:         callID,
			SessionID:      "s9",
			InitiatedBy:    "user",
			InitialTarget:  "primary_agent",
			CurrentAgentID: "primary_agent",
			Status:         models.CallStatusConnected,
			StartedAt:      now,
			ConnectedAt:    &now,
			Metadata:       map[string]any{},
		}}

		m := NewManager(store, notifier, nil)
		require.NoError(t, m.Restore(ctx))

		assert.NotNil(t, m.GetActiveCall("s9"))
		assert.True(t, m.EndCall(ctx, callID, "user", ""))
	})
}

func TestEmitEventOrdering(t *testing.T) {
	ctx := context.Background()

	t.Run("callbacks observe persisted state", func(t *testing.T) {
		m, store, _ := newTestManager()

		var observed []string
		m.RegisterEventCallback("s1", func(event *UIEvent) {
			// By emission time the store must already hold the state the
			// event describes.
			stored := store.calls[event.Call.CallID]
			if stored != nil && stored.Status == event.Call.Status {
				observed = append(observed, event.Type)
			}
		})

		call, err := m.InitiateCall(ctx, "s1", "user", "primary_agent", false)
		require.NoError(t, err)
		require.True(t, m.AnswerCall(ctx, call.CallID, "primary_agent"))

		assert.Equal(t, []string{"call_ringing", "call_connected"}, observed)
	})
}
