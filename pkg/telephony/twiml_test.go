package telephony

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTwiML(t *testing.T) {
	t.Run("reject response", func(t *testing.T) {
		xml := rejectTwiML()
		assert.Contains(t, xml, `<Reject reason="rejected">`)
	})

	t.Run("busy response says and hangs up", func(t *testing.T) {
		xml := busyTwiML()
		assert.Contains(t, xml, "high call volume")
		assert.Contains(t, xml, "<Hangup>")
	})

	t.Run("stream response carries custom parameters in order", func(t *testing.T) {
		xml := streamTwiML("Connecting you now.", "wss://example.com/twilio/media-stream/s1", map[string]string{
			"session_id":          "s1",
			"call_id":             "c1",
			"twilio_call_sid":     "CA123",
			"caller_phone_number": "+15551234567",
			"caller_name":         "Ada",
		})

		assert.Contains(t, xml, `<Stream url="wss://example.com/twilio/media-stream/s1">`)
		assert.Contains(t, xml, `<Parameter name="session_id" value="s1">`)
		assert.Contains(t, xml, `<Parameter name="call_id" value="c1">`)
		assert.Contains(t, xml, `<Parameter name="twilio_call_sid" value="CA123">`)
		// session_id sorts before call_id in the fixed emission order.
		assert.Less(t,
			indexOf(xml, "session_id"), indexOf(xml, "call_id"))
	})

	t.Run("empty parameters are omitted", func(t *testing.T) {
		xml := streamTwiML("Hold.", "wss://x/y", map[string]string{
			"session_id": "s1",
			"direction":  "",
		})
		assert.NotContains(t, xml, "direction")
	})
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestDTMFValidation(t *testing.T) {
	t.Run("valid digit strings pass", func(t *testing.T) {
		for _, digits := range []string{"123", "*#", "1w2W3", "0"} {
			assert.True(t, dtmfPattern.MatchString(digits), digits)
		}
	})

	t.Run("markup and letters are rejected", func(t *testing.T) {
		for _, digits := range []string{"", "12a", `"><Play>`, "1 2", "1;2"} {
			assert.False(t, dtmfPattern.MatchString(digits), digits)
		}
	})
}
