package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// signRequest reproduces the carrier's signing scheme for test vectors.
func signRequest(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(fullURL)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	const token = "auth-token"
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("From", "+15551234567")

	t.Run("accepts a correctly signed request", func(t *testing.T) {
		r := httptest.NewRequest("POST", "http://example.com/twilio/voice/incoming",
			strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.Header.Set("X-Twilio-Signature",
			signRequest(token, "http://example.com/twilio/voice/incoming", form))

		assert.True(t, validateSignature(r, token, form))
	})

	t.Run("rejects a tampered parameter", func(t *testing.T) {
		r := httptest.NewRequest("POST", "http://example.com/twilio/voice/incoming", nil)
		r.Header.Set("X-Twilio-Signature",
			signRequest(token, "http://example.com/twilio/voice/incoming", form))

		tampered := url.Values{}
		tampered.Set("CallSid", "CA123")
		tampered.Set("From", "+15550000000")
		assert.False(t, validateSignature(r, token, tampered))
	})

	t.Run("rejects a missing signature header", func(t *testing.T) {
		r := httptest.NewRequest("POST", "http://example.com/twilio/voice/incoming", nil)
		assert.False(t, validateSignature(r, token, form))
	})

	t.Run("recovers https scheme behind a proxy", func(t *testing.T) {
		r := httptest.NewRequest("POST", "http://example.com/twilio/voice/incoming", nil)
		r.Header.Set("X-Forwarded-Proto", "https")
		r.Header.Set("X-Twilio-Signature",
			signRequest(token, "https://example.com/twilio/voice/incoming", form))

		assert.True(t, validateSignature(r, token, form))
	})
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "+155****67", redactPhone("+15551234567"))
	assert.Equal(t, "***", redactPhone("12345"))
	assert.Equal(t, "***", redactPhone(""))
}
