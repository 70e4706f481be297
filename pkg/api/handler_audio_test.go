package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxos-ai/voxos/pkg/auth"
	"github.com/voxos-ai/voxos/pkg/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewTokenIssuer("test-secret")
	require.NoError(t, err)
	signer, err := auth.NewURLSigner("test-secret")
	require.NoError(t, err)

	return &Server{
		cfg:    &config.Config{AudioFilesDir: t.TempDir()},
		tokens: tokens,
		signer: signer,
	}
}

func audioRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(securityHeaders())
	r.POST("/voice/token", s.voiceTokenHandler)
	r.GET("/audio/signed/:signature", s.signedAudioHandler)
	return r
}

func TestVoiceTokenHandler(t *testing.T) {
	s := newTestServer(t)
	r := audioRouter(s)

	t.Run("mints a voice-scoped token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/voice/token",
			strings.NewReader(`{"session_id":"s1"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Token     string `json:"token"`
			ExpiresIn int    `json:"expires_in"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int(auth.VoiceTokenTTL.Seconds()), resp.ExpiresIn)

		claims, err := s.tokens.Validate(resp.Token, "s1", auth.ScopeVoice)
		require.NoError(t, err)
		assert.Equal(t, "s1", claims.SessionID)
	})

	t.Run("rejects a missing session id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/voice/token", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSignedAudioHandler(t *testing.T) {
	s := newTestServer(t)
	r := audioRouter(s)

	relPath := "agent_responses/s1/vm_1.wav"
	full := filepath.Join(s.cfg.AudioFilesDir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("RIFFaudio"), 0o644))

	t.Run("serves a validly signed file", func(t *testing.T) {
		signed := s.signer.SignedURL(relPath, time.Hour)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", signed, nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "RIFFaudio", w.Body.String())
	})

	t.Run("rejects an expired URL", func(t *testing.T) {
		signed := s.signer.SignedURL(relPath, -time.Minute)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", signed, nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("rejects a tampered signature", func(t *testing.T) {
		signed := s.signer.SignedURL(relPath, time.Hour)
		tampered := strings.Replace(signed, "/audio/signed/", "/audio/signed/00", 1)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", tampered, nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("rejects path traversal even when signed", func(t *testing.T) {
		signed := s.signer.SignedURL("../../etc/passwd", time.Hour)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", signed, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("sets security headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/audio/signed/x?file=a&expires=1", nil))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	})
}
