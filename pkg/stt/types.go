// Package stt provides streaming speech-to-text. The concrete provider is
// AssemblyAI's realtime WebSocket API; callers depend on the Client
// interface so the bridge can be tested without a live connection.
package stt

import "context"

// Transcript is one recognition result from the stream.
type Transcript struct {
	Text       string
	IsFinal    bool
	Formatted  bool
	Confidence *float64
	SpeakerID  string // empty when the provider doesn't diarize
}

// TranscriptFunc receives transcripts as they arrive. Called from the
// client's read goroutine; implementations must not block.
type TranscriptFunc func(t Transcript)

// Client is a per-call streaming STT session.
type Client interface {
	// Start opens the streaming connection.
	Start(ctx context.Context) error
	// SendAudio pushes 16-bit 16 kHz mono PCM. Audio is buffered to the
	// provider's minimum chunk size internally.
	SendAudio(data []byte) error
	// Close terminates the stream and releases resources.
	Close() error
}
