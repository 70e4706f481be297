package bus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	t.Run("round trips through JSON", func(t *testing.T) {
		env, err := NewEnvelope("incoming_call", "call_manager", "primary_agent", map[string]any{
			"call_id":    "c1",
			"session_id": "s1",
		})
		require.NoError(t, err)

		data, err := json.Marshal(env)
		require.NoError(t, err)

		var decoded Envelope
		require.NoError(t, json.Unmarshal(data, &decoded))

		assert.Equal(t, env.NotificationID, decoded.NotificationID)
		assert.Equal(t, "incoming_call", decoded.NotificationType)
		assert.Equal(t, "call_manager", decoded.Source)
		assert.Equal(t, "primary_agent", decoded.RecipientAgentID)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
		assert.Equal(t, "c1", payload["call_id"])
	})

	t.Run("each envelope gets a fresh notification id", func(t *testing.T) {
		a, err := NewEnvelope("x", "s", "", nil)
		require.NoError(t, err)
		b, err := NewEnvelope("x", "s", "", nil)
		require.NoError(t, err)
		assert.NotEqual(t, a.NotificationID, b.NotificationID)
	})

	t.Run("timestamp is UTC", func(t *testing.T) {
		env, err := NewEnvelope("x", "s", "", nil)
		require.NoError(t, err)
		_, offset := env.Timestamp.Zone()
		assert.Equal(t, 0, offset)
	})
}

func TestAgentQueue(t *testing.T) {
	assert.Equal(t, "primary_agent_queue", AgentQueue("primary_agent"))
	assert.Equal(t, "research_agent_queue", AgentQueue("research_agent"))
}
