package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxos-ai/voxos/pkg/audio"
)

const (
	assemblyAIEndpoint = "wss://streaming.assemblyai.com/v3/ws"

	pingInterval = 20 * time.Second
	pongTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// AssemblyAIClient streams PCM audio to AssemblyAI and delivers transcripts
// through a callback.
//
// Two behaviors beyond plain streaming:
//   - first-speaker lock: when the provider attributes turns to speakers,
//     the first speaker heard wins and later speakers are dropped, so a TV
//     in the background can't hijack the call;
//   - formatted-final dedup: with turn formatting enabled the provider
//     sends an unformatted final followed by a formatted one; only the
//     formatted final is surfaced.
type AssemblyAIClient struct {
	apiKey       string
	sampleRate   int
	onTranscript TranscriptFunc

	conn    *websocket.Conn
	writeMu sync.Mutex

	buffer *audio.ChunkBuffer

	firstSpeakerID string
	speakerMu      sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// NewAssemblyAIClient creates a streaming client for one call.
func NewAssemblyAIClient(apiKey string, sampleRate int, onTranscript TranscriptFunc) *AssemblyAIClient {
	return &AssemblyAIClient{
		apiKey:       apiKey,
		sampleRate:   sampleRate,
		onTranscript: onTranscript,
		buffer:       audio.NewChunkBuffer(),
	}
}

// Start opens the realtime WebSocket and begins the read loop.
func (c *AssemblyAIClient) Start(ctx context.Context) error {
	if c.apiKey == "" {
		return errors.New("AssemblyAI API key is required")
	}

	params := url.Values{}
	params.Set("sample_rate", fmt.Sprintf("%d", c.sampleRate))
	params.Set("format_turns", "true")
	endpoint := assemblyAIEndpoint + "?" + params.Encode()

	header := http.Header{}
	header.Set("Authorization", c.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("STT dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("STT dial failed: %w", err)
	}
	c.conn = conn

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))

	go c.readLoop(runCtx)
	go c.pingLoop(runCtx)

	slog.Info("STT stream started", "sample_rate", c.sampleRate)
	return nil
}

// SendAudio buffers PCM and forwards provider-minimum-sized chunks as
// binary frames.
func (c *AssemblyAIClient) SendAudio(data []byte) error {
	if dropped := c.buffer.Write(data); dropped > 0 {
		slog.Warn("STT audio buffer overflow, dropped oldest bytes", "dropped", dropped)
	}

	chunk := c.buffer.TakeChunk()
	if chunk == nil {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.New("STT stream not started")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("STT audio write failed: %w", err)
	}
	return nil
}

// turnEvent is the subset of the provider's Turn message we act on.
type turnEvent struct {
	Type            string   `json:"type"`
	Transcript      string   `json:"transcript"`
	EndOfTurn       bool     `json:"end_of_turn"`
	TurnIsFormatted bool     `json:"turn_is_formatted"`
	EndOfTurnConf   *float64 `json:"end_of_turn_confidence"`
	SpeakerID       string   `json:"speaker_id"`
}

func (c *AssemblyAIClient) readLoop(ctx context.Context) {
	defer close(c.done)

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !c.isClosed() {
				slog.Error("STT read failed", "error", err)
			}
			return
		}

		var ev turnEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("Unparseable STT event", "error", err)
			continue
		}
		if ev.Type != "Turn" || ev.Transcript == "" {
			continue
		}

		// Skip unformatted finals; the formatted version follows and
		// surfacing both would double-dispatch the turn.
		if ev.EndOfTurn && !ev.TurnIsFormatted {
			continue
		}

		if !c.acceptSpeaker(ev.SpeakerID) {
			slog.Debug("Dropping transcript from non-primary speaker", "speaker_id", ev.SpeakerID)
			continue
		}

		c.onTranscript(Transcript{
			Text:       ev.Transcript,
			IsFinal:    ev.EndOfTurn,
			Formatted:  ev.TurnIsFormatted,
			Confidence: ev.EndOfTurnConf,
			SpeakerID:  ev.SpeakerID,
		})
	}
}

// acceptSpeaker locks onto the first speaker the provider reports.
func (c *AssemblyAIClient) acceptSpeaker(speakerID string) bool {
	if speakerID == "" {
		return true
	}
	c.speakerMu.Lock()
	defer c.speakerMu.Unlock()
	if c.firstSpeakerID == "" {
		c.firstSpeakerID = speakerID
		slog.Info("Locked onto first speaker", "speaker_id", speakerID)
		return true
	}
	return c.firstSpeakerID == speakerID
}

func (c *AssemblyAIClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *AssemblyAIClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close flushes remaining audio, sends the termination message, and tears
// down the connection.
func (c *AssemblyAIClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	if tail := c.buffer.Flush(); len(tail) > 0 {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.conn.WriteMessage(websocket.BinaryMessage, tail)
		c.writeMu.Unlock()
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteJSON(map[string]any{"type": "Terminate"})
	c.writeMu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	err := c.conn.Close()
	if c.done != nil {
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
		}
	}
	return err
}
