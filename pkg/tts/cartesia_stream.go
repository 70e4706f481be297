package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const cartesiaWSEndpoint = "wss://api.cartesia.ai/tts/websocket"

// CartesiaStreamingClient holds a persistent synthesis WebSocket. Keeping
// the connection warm saves a TLS+WS handshake (~200 ms) on every speak
// request, which matters when the caller is waiting on the line.
//
// One synthesis runs at a time; concurrent GenerateStream calls serialize
// on the request mutex.
type CartesiaStreamingClient struct {
	apiKey     string
	voiceID    string
	model      string
	sampleRate int

	mu   sync.Mutex // guards conn and serializes synthesis requests
	conn *websocket.Conn
}

// NewCartesiaStreamingClient creates the streaming client. Call Connect to
// pre-warm.
func NewCartesiaStreamingClient(apiKey, voiceID, model string) *CartesiaStreamingClient {
	return &CartesiaStreamingClient{
		apiKey:     apiKey,
		voiceID:    voiceID,
		model:      model,
		sampleRate: CartesiaSampleRate,
	}
}

// SampleRate is the PCM rate of streamed chunks.
func (c *CartesiaStreamingClient) SampleRate() int { return c.sampleRate }

// Connect dials the synthesis WebSocket.
func (c *CartesiaStreamingClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *CartesiaStreamingClient) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("cartesia_version", cartesiaVersion)
	endpoint := cartesiaWSEndpoint + "?" + params.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("cartesia WS dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("cartesia WS dial failed: %w", err)
	}
	c.conn = conn
	slog.Info("Cartesia streaming connection established")
	return nil
}

// IsConnected reports whether the socket is live.
func (c *CartesiaStreamingClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

type cartesiaStreamRequest struct {
	ContextID    string         `json:"context_id"`
	ModelID      string         `json:"model_id"`
	Transcript   string         `json:"transcript"`
	Voice        map[string]any `json:"voice"`
	OutputFormat map[string]any `json:"output_format"`
	Language     string         `json:"language"`
	Continue     bool           `json:"continue"`
}

type cartesiaStreamResponse struct {
	Type      string `json:"type"`
	ContextID string `json:"context_id"`
	Data      string `json:"data"` // base64 PCM
	Done      bool   `json:"done"`
	Error     string `json:"error"`
}

// GenerateStream synthesizes text, yielding raw PCM chunks. On transport
// error the connection is dropped so the next call re-dials.
func (c *CartesiaStreamingClient) GenerateStream(ctx context.Context, text, emotion string) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		c.mu.Lock()
		defer c.mu.Unlock()

		if err := c.connectLocked(ctx); err != nil {
			errs <- err
			return
		}

		contextID := uuid.New().String()
		voice := map[string]any{"mode": "id", "id": c.voiceID}
		if emotion != "" && emotion != "neutral" {
			voice["__experimental_controls"] = map[string]any{"emotion": []string{emotion}}
		}

		req := cartesiaStreamRequest{
			ContextID:  contextID,
			ModelID:    c.model,
			Transcript: text,
			Voice:      voice,
			OutputFormat: map[string]any{
				"container":   "raw",
				"encoding":    "pcm_s16le",
				"sample_rate": c.sampleRate,
			},
			Language: "en",
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(req); err != nil {
			c.dropLocked()
			errs <- fmt.Errorf("cartesia stream write failed: %w", err)
			return
		}

		for {
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}

			_ = c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
			var resp cartesiaStreamResponse
			if err := c.conn.ReadJSON(&resp); err != nil {
				c.dropLocked()
				errs <- fmt.Errorf("cartesia stream read failed: %w", err)
				return
			}

			// Interleaved frames from a cancelled synthesis are skipped.
			if resp.ContextID != "" && resp.ContextID != contextID {
				continue
			}

			switch resp.Type {
			case "chunk":
				pcm, err := base64.StdEncoding.DecodeString(resp.Data)
				if err != nil {
					errs <- fmt.Errorf("cartesia chunk decode failed: %w", err)
					return
				}
				select {
				case chunks <- pcm:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			case "done":
				return
			case "error":
				errs <- fmt.Errorf("cartesia synthesis error: %s", resp.Error)
				return
			}

			if resp.Done {
				return
			}
		}
	}()

	return chunks, errs
}

func (c *CartesiaStreamingClient) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close tears down the persistent connection.
func (c *CartesiaStreamingClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
