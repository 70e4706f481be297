package stt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptSpeaker(t *testing.T) {
	t.Run("locks onto the first reported speaker", func(t *testing.T) {
		c := NewAssemblyAIClient("key", 16000, func(Transcript) {})

		assert.True(t, c.acceptSpeaker("spk_1"))
		assert.True(t, c.acceptSpeaker("spk_1"))
		assert.False(t, c.acceptSpeaker("spk_2"))
	})

	t.Run("empty speaker ids always pass", func(t *testing.T) {
		c := NewAssemblyAIClient("key", 16000, func(Transcript) {})

		assert.True(t, c.acceptSpeaker(""))
		assert.True(t, c.acceptSpeaker("spk_1"))
		assert.True(t, c.acceptSpeaker(""))
	})
}

func TestTurnEventParsing(t *testing.T) {
	t.Run("formatted final turn carries confidence", func(t *testing.T) {
		raw := `{"type":"Turn","transcript":"Hello world.","end_of_turn":true,
			"turn_is_formatted":true,"end_of_turn_confidence":0.93}`
		var ev turnEvent
		require.NoError(t, json.Unmarshal([]byte(raw), &ev))

		assert.Equal(t, "Turn", ev.Type)
		assert.Equal(t, "Hello world.", ev.Transcript)
		assert.True(t, ev.EndOfTurn)
		assert.True(t, ev.TurnIsFormatted)
		require.NotNil(t, ev.EndOfTurnConf)
		assert.InDelta(t, 0.93, *ev.EndOfTurnConf, 1e-9)
	})

	t.Run("interim turn has no end_of_turn", func(t *testing.T) {
		raw := `{"type":"Turn","transcript":"Hello","end_of_turn":false}`
		var ev turnEvent
		require.NoError(t, json.Unmarshal([]byte(raw), &ev))
		assert.False(t, ev.EndOfTurn)
		assert.Nil(t, ev.EndOfTurnConf)
	})
}

func TestSendAudioBeforeStart(t *testing.T) {
	c := NewAssemblyAIClient("key", 16000, func(Transcript) {})

	// Below the chunk threshold nothing is forwarded, so no connection is
	// needed yet.
	assert.NoError(t, c.SendAudio(make([]byte, 100)))

	// Crossing the threshold without a live stream is an error.
	assert.Error(t, c.SendAudio(make([]byte, 4000)))
}
