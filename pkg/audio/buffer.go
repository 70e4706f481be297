// Package audio provides the PCM plumbing shared by the bridge and the
// telephony adapter: chunk buffering, mulaw transcoding, resampling, and
// WAV/MP3 framing.
package audio

import "sync"

const (
	// SampleRatePCM is the pipeline-wide linear PCM rate.
	SampleRatePCM = 16000
	// SampleRateTelephony is the carrier-side mulaw rate.
	SampleRateTelephony = 8000

	// MinChunkBytes is ~100 ms at 16 kHz 16-bit mono, the smallest chunk
	// worth forwarding downstream (STT providers reject tiny fragments).
	MinChunkBytes = 3200
	// MaxBufferBytes caps buffered audio at ~2 s; oldest bytes are dropped
	// on overflow so the newest audio always survives.
	MaxBufferBytes = 64000
)

// ChunkBuffer accumulates audio until at least MinChunkBytes are available,
// dropping the oldest bytes past MaxBufferBytes. Safe for concurrent use.
type ChunkBuffer struct {
	mu  sync.Mutex
	buf []byte
}

// NewChunkBuffer creates an empty buffer.
func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{}
}

// Write appends audio. If the buffer would exceed MaxBufferBytes the oldest
// overflow bytes are discarded. Returns the number of bytes dropped.
func (b *ChunkBuffer) Write(data []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, data...)
	dropped := 0
	if len(b.buf) > MaxBufferBytes {
		dropped = len(b.buf) - MaxBufferBytes
		b.buf = b.buf[dropped:]
	}
	return dropped
}

// TakeChunk removes and returns all buffered audio if at least
// MinChunkBytes are available, else nil.
func (b *ChunkBuffer) TakeChunk() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) < MinChunkBytes {
		return nil
	}
	chunk := b.buf
	b.buf = nil
	return chunk
}

// Flush removes and returns whatever is buffered, regardless of size.
func (b *ChunkBuffer) Flush() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	chunk := b.buf
	b.buf = nil
	return chunk
}

// Len returns the buffered byte count.
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
