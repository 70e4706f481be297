package auth

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSignedURL(t *testing.T, signed string) (signature, file string, expires int64) {
	t.Helper()
	parts := strings.SplitN(signed, "?", 2)
	require.Len(t, parts, 2)
	signature = strings.TrimPrefix(parts[0], "/audio/signed/")
	query, err := url.ParseQuery(parts[1])
	require.NoError(t, err)
	file = query.Get("file")
	expires, err = strconv.ParseInt(query.Get("expires"), 10, 64)
	require.NoError(t, err)
	return signature, file, expires
}

func TestURLSigner(t *testing.T) {
	signer, err := NewURLSigner("test-secret")
	require.NoError(t, err)

	t.Run("signed URL verifies", func(t *testing.T) {
		signed := signer.SignedURL("agent_responses/s1/vm_123.wav", time.Hour)
		sig, file, expires := parseSignedURL(t, signed)

		assert.Equal(t, "agent_responses/s1/vm_123.wav", file)
		assert.NoError(t, signer.Verify(sig, file, expires))
	})

	t.Run("expired URL is rejected even with a valid signature", func(t *testing.T) {
		signed := signer.SignedURL("a.wav", -time.Minute)
		sig, file, expires := parseSignedURL(t, signed)

		err := signer.Verify(sig, file, expires)
		assert.ErrorContains(t, err, "expired")
	})

	t.Run("tampered file path is rejected", func(t *testing.T) {
		signed := signer.SignedURL("a.wav", time.Hour)
		sig, _, expires := parseSignedURL(t, signed)

		assert.Error(t, signer.Verify(sig, "b.wav", expires))
	})

	t.Run("tampered expiry is rejected", func(t *testing.T) {
		signed := signer.SignedURL("a.wav", time.Hour)
		sig, file, expires := parseSignedURL(t, signed)

		assert.Error(t, signer.Verify(sig, file, expires+60))
	})

	t.Run("different secret produces a different signature", func(t *testing.T) {
		other, err := NewURLSigner("other-secret")
		require.NoError(t, err)

		signed := signer.SignedURL("a.wav", time.Hour)
		sig, file, expires := parseSignedURL(t, signed)
		assert.Error(t, other.Verify(sig, file, expires))
	})

	t.Run("empty secret is refused", func(t *testing.T) {
		_, err := NewURLSigner("")
		assert.Error(t, err)
	})
}
