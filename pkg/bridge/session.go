package bridge

import (
	"strings"
	"sync"
	"time"

	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/stt"
	"github.com/voxos-ai/voxos/pkg/tts"
)

// AudioSource identifies the transport feeding a bridge session.
type AudioSource string

const (
	SourceWeb    AudioSource = "web"
	SourceTwilio AudioSource = "twilio"
)

// session is the per-call state the bridge owns: the STT stream, the
// debounce buffer, the ducking flag, and the egress identifiers.
//
// Fields are guarded by mu; the debounce and ducking timers are replaced
// atomically with the state they guard.
type session struct {
	sessionID      string
	callID         string
	currentAgentID string
	source         AudioSource
	fastMode       bool

	twilioCallSID   string
	twilioStreamSID string

	sttClient stt.Client

	mu sync.Mutex

	// Debounce: finals accumulate here and flush 1.2 s after the last one,
	// so clause pauses don't fragment one user turn into several agent
	// dispatches.
	pendingTranscription string
	debounceTimer        *time.Timer

	// Ducking: while TTS is playing, incoming transcripts are discarded so
	// the agent doesn't answer its own echo off the carrier.
	isTTSPlaying bool
	duckTimer    *time.Timer

	agentVoices map[string]tts.Voice

	createdAt   time.Time
	lastAudioAt time.Time
}

func newSession(sessionID, callID string, fastMode bool) *session {
	return &session{
		sessionID:      sessionID,
		callID:         callID,
		currentAgentID: bus.PrimaryAgentID,
		source:         SourceWeb,
		fastMode:       fastMode,
		agentVoices:    make(map[string]tts.Voice),
		createdAt:      time.Now().UTC(),
	}
}

// appendPending adds a final transcript to the debounce buffer.
func (s *session) appendPending(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingTranscription == "" {
		s.pendingTranscription = text
	} else {
		s.pendingTranscription += " " + text
	}
}

// takePending empties and returns the debounce buffer.
func (s *session) takePending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := strings.TrimSpace(s.pendingTranscription)
	s.pendingTranscription = ""
	return text
}

// resetDebounce (re)schedules the flush. Cancelling a pending flush when
// more text arrives is the normal path.
func (s *session) resetDebounce(d time.Duration, flush func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(d, flush)
}

func (s *session) cancelDebounce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
}

// startDucking sets the playing flag and schedules its reset after the
// estimated playback duration.
func (s *session) startDucking(estimated time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isTTSPlaying = true
	if s.duckTimer != nil {
		s.duckTimer.Stop()
	}
	s.duckTimer = time.AfterFunc(estimated, func() {
		s.mu.Lock()
		s.isTTSPlaying = false
		s.mu.Unlock()
	})
}

func (s *session) stopDucking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isTTSPlaying = false
	if s.duckTimer != nil {
		s.duckTimer.Stop()
		s.duckTimer = nil
	}
}

func (s *session) ducking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTTSPlaying
}

// estimatePlayback guesses how long the synthesized text takes to play:
// roughly three words per second plus a second of padding, floored at two
// seconds.
func estimatePlayback(text string) time.Duration {
	words := len(strings.Fields(text))
	est := time.Duration(float64(words)/3.0+1.0) * time.Second
	if est < 2*time.Second {
		est = 2 * time.Second
	}
	return est
}
