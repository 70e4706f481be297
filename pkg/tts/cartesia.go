package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	cartesiaBytesEndpoint = "https://api.cartesia.ai/tts/bytes"
	cartesiaVersion       = "2024-06-10"

	// CartesiaSampleRate balances quality and conversion cost downstream.
	CartesiaSampleRate = 24000
)

// CartesiaClient is the buffered HTTP client. It requests WAV-containered
// PCM so egress can unwrap it without decoding.
type CartesiaClient struct {
	apiKey  string
	voiceID string
	model   string
	client  *http.Client
}

// NewCartesiaClient creates a buffered Cartesia client for one voice.
func NewCartesiaClient(apiKey, voiceID string) *CartesiaClient {
	return &CartesiaClient{
		apiKey:  apiKey,
		voiceID: voiceID,
		model:   "sonic-3",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Provider identifies this client in logs and failure notifications.
func (c *CartesiaClient) Provider() string { return "cartesia" }

// GenerateAudio synthesizes text and returns a WAV blob.
func (c *CartesiaClient) GenerateAudio(ctx context.Context, text, emotion string) ([]byte, error) {
	body := map[string]any{
		"model_id":   c.model,
		"transcript": text,
		"voice": map[string]any{
			"mode": "id",
			"id":   c.voiceID,
		},
		"output_format": map[string]any{
			"container":   "wav",
			"encoding":    "pcm_s16le",
			"sample_rate": CartesiaSampleRate,
		},
		"language": "en",
	}
	if emotion != "" && emotion != "neutral" {
		body["voice"].(map[string]any)["__experimental_controls"] = map[string]any{
			"emotion": []string{emotion},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cartesiaBytesEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("cartesia returned %d: %s", resp.StatusCode, msg)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cartesia response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("cartesia returned empty audio")
	}
	return audio, nil
}
