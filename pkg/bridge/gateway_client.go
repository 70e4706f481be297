package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GatewayClient posts bridge results back to the gateway's internal API:
// transcripts for UI display and persistence, and TTS audio for web egress.
type GatewayClient struct {
	baseURL     string
	internalKey string
	client      *http.Client
}

// NewGatewayClient creates the internal HTTP client.
func NewGatewayClient(baseURL, internalKey string) *GatewayClient {
	return &GatewayClient{
		baseURL:     baseURL,
		internalKey: internalKey,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GatewayClient) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Key", g.internalKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d for %s", resp.StatusCode, path)
	}
	return nil
}

// SendTranscription forwards an interim or final transcript for UI display.
func (g *GatewayClient) SendTranscription(ctx context.Context, sessionID, callID, text string, isFinal bool, confidence *float64) error {
	return g.post(ctx, "/api/v1/calls/internal/transcription", map[string]any{
		"session_id": sessionID,
		"call_id":    callID,
		"text":       text,
		"is_final":   isFinal,
		"confidence": confidence,
	})
}

// SendTTSAudio delivers synthesized audio for web egress. The gateway
// relays it to the session's voice WebSocket as a binary frame.
func (g *GatewayClient) SendTTSAudio(ctx context.Context, sessionID, callID string, audio []byte, text, agentID string) error {
	return g.post(ctx, "/api/v1/calls/internal/tts-audio", map[string]any{
		"session_id": sessionID,
		"call_id":    callID,
		"audio_b64":  base64.StdEncoding.EncodeToString(audio),
		"text":       text,
		"agent_id":   agentID,
	})
}
