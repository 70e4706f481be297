package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret")
	require.NoError(t, err)

	t.Run("minted token validates for its session and scope", func(t *testing.T) {
		token, err := issuer.Mint("s1", "u1", ScopeVoice, time.Minute)
		require.NoError(t, err)

		claims, err := issuer.Validate(token, "s1", ScopeVoice)
		require.NoError(t, err)
		assert.Equal(t, "s1", claims.SessionID)
		assert.Equal(t, "u1", claims.UserID)
	})

	t.Run("wrong session is rejected", func(t *testing.T) {
		token, _ := issuer.Mint("s1", "", ScopeVoice, time.Minute)
		_, err := issuer.Validate(token, "s2", ScopeVoice)
		assert.Error(t, err)
	})

	t.Run("wrong scope is rejected", func(t *testing.T) {
		token, _ := issuer.Mint("s1", "", ScopeConversation, time.Minute)
		_, err := issuer.Validate(token, "s1", ScopeVoice)
		assert.Error(t, err)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, _ := issuer.Mint("s1", "", ScopeVoice, -time.Minute)
		_, err := issuer.Validate(token, "s1", ScopeVoice)
		assert.Error(t, err)
	})

	t.Run("token from another issuer is rejected", func(t *testing.T) {
		other, err := NewTokenIssuer("other-secret")
		require.NoError(t, err)
		token, _ := other.Mint("s1", "", ScopeVoice, time.Minute)
		_, err = issuer.Validate(token, "s1", ScopeVoice)
		assert.Error(t, err)
	})

	t.Run("empty secret is refused", func(t *testing.T) {
		_, err := NewTokenIssuer("")
		assert.Error(t, err)
	})
}
