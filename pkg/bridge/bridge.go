// Package bridge implements the per-call voice pipeline: caller audio in
// from the bus, streaming STT, debounced dispatch to the agent, TTS
// generation, and audio egress to the web or carrier transport.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/stt"
	"github.com/voxos-ai/voxos/pkg/tts"
)

// TranscriptionDebounce is how long the bridge waits after the last final
// transcript before dispatching the accumulated turn to the agent. 1.2 s
// gives slower speakers time to complete their thoughts.
const TranscriptionDebounce = 1200 * time.Millisecond

const source = "voice_bridge"

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxos_bridge_active_sessions",
		Help: "Number of live call bridge sessions.",
	})
	sttFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxos_bridge_stt_failures_total",
		Help: "Fatal STT session failures.",
	})
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxos_bridge_tts_requests_total",
		Help: "TTS generations by provider and outcome.",
	}, []string{"provider", "outcome"})
)

// STTFactory builds a streaming STT client for a call. Indirection keeps
// the bridge testable without a live provider.
type STTFactory func(onTranscript stt.TranscriptFunc) stt.Client

// Bridge coordinates every live call session in this process.
type Bridge struct {
	publisher *bus.Publisher
	gateway   *GatewayClient

	newSTT     STTFactory
	ttsFactory *tts.Factory
	streaming  tts.StreamingClient // nil when streaming TTS is not configured
	voices     *tts.VoiceResolver

	sttBreaker *gobreaker.CircuitBreaker
	ttsBreaker *gobreaker.CircuitBreaker

	mu       sync.Mutex
	sessions map[string]*session // call_id → session
}

// NewBridge wires the bridge. streaming may be nil.
func NewBridge(publisher *bus.Publisher, gateway *GatewayClient, newSTT STTFactory, ttsFactory *tts.Factory, streaming tts.StreamingClient, voices *tts.VoiceResolver) *Bridge {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}
	}

	return &Bridge{
		publisher:  publisher,
		gateway:    gateway,
		newSTT:     newSTT,
		ttsFactory: ttsFactory,
		streaming:  streaming,
		voices:     voices,
		sttBreaker: gobreaker.NewCircuitBreaker(settings("stt")),
		ttsBreaker: gobreaker.NewCircuitBreaker(settings("tts")),
		sessions:   make(map[string]*session),
	}
}

// Warmup pre-connects the streaming TTS socket so the first greeting
// doesn't pay the handshake.
func (b *Bridge) Warmup(ctx context.Context) {
	if b.streaming == nil {
		return
	}
	if err := b.streaming.Connect(ctx); err != nil {
		slog.Warn("Streaming TTS pre-connect failed, will retry on first use", "error", err)
	}
}

// getOrCreateSession returns the call's session, creating it (and its STT
// stream) on first touch.
func (b *Bridge) getOrCreateSession(ctx context.Context, sessionID, callID string, fastMode bool) (*session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions[callID]; ok {
		return s, nil
	}

	s := newSession(sessionID, callID, fastMode)
	client := b.newSTT(func(t stt.Transcript) {
		b.onTranscript(s, t)
	})
	s.sttClient = client

	if _, err := b.sttBreaker.Execute(func() (any, error) {
		return nil, client.Start(ctx)
	}); err != nil {
		sttFailures.Inc()
		b.publishVoiceFailure(ctx, s, "stt", "", err)
		return nil, fmt.Errorf("failed to start STT for call %s: %w", callID, err)
	}

	b.sessions[callID] = s
	activeSessions.Set(float64(len(b.sessions)))
	slog.Info("Bridge session created", "call_id", callID, "fast_mode", fastMode)
	return s, nil
}

// InitializeStream declares a session before any audio arrives so outbound
// TTS (greetings) has an egress identifier from the first moment.
func (b *Bridge) InitializeStream(ctx context.Context, sessionID, callID string, src AudioSource, twilioCallSID, twilioStreamSID string) error {
	s, err := b.getOrCreateSession(ctx, sessionID, callID, false)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.source = src
	if twilioCallSID != "" {
		s.twilioCallSID = twilioCallSID
	}
	if twilioStreamSID != "" {
		s.twilioStreamSID = twilioStreamSID
	}
	s.mu.Unlock()

	slog.Info("Bridge stream initialized", "call_id", callID, "source", src, "stream_sid", twilioStreamSID)
	return nil
}

// ProcessAudio feeds a caller audio chunk into the call's STT stream.
func (b *Bridge) ProcessAudio(ctx context.Context, sessionID, callID string, pcm []byte, src AudioSource, twilioCallSID, twilioStreamSID string, fastMode bool) error {
	s, err := b.getOrCreateSession(ctx, sessionID, callID, fastMode)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastAudioAt = time.Now().UTC()
	if src == SourceTwilio {
		s.source = SourceTwilio
		if twilioCallSID != "" {
			s.twilioCallSID = twilioCallSID
		}
		if twilioStreamSID != "" {
			s.twilioStreamSID = twilioStreamSID
		}
	}
	client := s.sttClient
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.SendAudio(pcm); err != nil {
		return fmt.Errorf("failed to push audio for call %s: %w", callID, err)
	}
	return nil
}

// onTranscript handles one STT result: interim results go straight to the
// UI, finals join the debounce buffer.
func (b *Bridge) onTranscript(s *session, t stt.Transcript) {
	if s.ducking() {
		slog.Debug("Ignoring transcription during TTS playback", "call_id", s.callID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.gateway.SendTranscription(ctx, s.sessionID, s.callID, t.Text, t.IsFinal, t.Confidence); err != nil {
		slog.Warn("Failed to forward transcription", "call_id", s.callID, "error", err)
	}

	if t.IsFinal && t.Text != "" {
		s.appendPending(t.Text)
		s.resetDebounce(TranscriptionDebounce, func() {
			b.flushToAgent(s)
		})
	}
}

// flushToAgent dispatches the accumulated user turn to the primary agent
// queue; the session's current agent is named in the voice metadata.
func (b *Bridge) flushToAgent(s *session) {
	text := s.takePending()
	if text == "" {
		return
	}

	s.mu.Lock()
	agent := s.currentAgentID
	fastMode := s.fastMode
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	env, err := bus.NewEnvelope("user_message", source, bus.PrimaryAgentID, map[string]any{
		"session_id": s.sessionID,
		"content":    text,
		"voice_metadata": map[string]any{
			"call_id":       s.callID,
			"is_call_mode":  true,
			"fast_mode":     fastMode,
			"current_agent": agent,
			"content_type":  "call_transcript",
		},
	})
	if err != nil {
		slog.Error("Failed to build agent dispatch", "call_id", s.callID, "error", err)
		return
	}
	if err := b.publisher.PublishToQueue(ctx, bus.AgentQueue(bus.PrimaryAgentID), env); err != nil {
		slog.Error("Failed to dispatch transcript to agent", "call_id", s.callID, "error", err)
		return
	}
	slog.Info("Dispatched user turn to agent", "call_id", s.callID, "chars", len(text))
}

// AgentSpeak synthesizes agent speech and routes it to the call's egress.
func (b *Bridge) AgentSpeak(ctx context.Context, sessionID, callID, text, agentID, emotion string, fastMode bool) error {
	s, err := b.getOrCreateSession(ctx, sessionID, callID, fastMode)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if fastMode {
		s.fastMode = true
	}
	if agentID != "" {
		s.currentAgentID = agentID
	}
	s.mu.Unlock()

	s.startDucking(estimatePlayback(text))

	audioData, sampleRate, err := b.generate(ctx, s, text, agentID, emotion)
	if err != nil {
		s.stopDucking()
		b.publishVoiceFailure(ctx, s, "tts", text, err)
		return err
	}

	if err := b.egress(ctx, s, audioData, sampleRate, text, agentID); err != nil {
		s.stopDucking()
		return err
	}
	return nil
}

// generate runs the provider ladder: streaming first, then buffered
// Cartesia/ElevenLabs by voice. The streaming path returns raw PCM and its
// rate; buffered output (a WAV or MP3 blob) is returned as-is with
// sampleRate 0 and decoded by egress.
func (b *Bridge) generate(ctx context.Context, s *session, text, agentID, emotion string) ([]byte, int, error) {
	if b.streaming != nil {
		pcm, err := b.generateStreaming(ctx, text, emotion)
		if err == nil {
			ttsRequests.WithLabelValues("cartesia_stream", "ok").Inc()
			return pcm, b.streaming.SampleRate(), nil
		}
		ttsRequests.WithLabelValues("cartesia_stream", "error").Inc()
		slog.Warn("Streaming TTS failed, falling back to buffered", "call_id", s.callID, "error", err)
	}

	voice := b.resolveVoice(ctx, s, agentID)
	client := b.ttsFactory.ForVoice(voice)

	result, err := b.ttsBreaker.Execute(func() (any, error) {
		return client.GenerateAudio(ctx, text, emotion)
	})
	if err != nil {
		ttsRequests.WithLabelValues(client.Provider(), "error").Inc()
		return nil, 0, fmt.Errorf("buffered TTS failed: %w", err)
	}
	ttsRequests.WithLabelValues(client.Provider(), "ok").Inc()
	return result.([]byte), 0, nil
}

func (b *Bridge) generateStreaming(ctx context.Context, text, emotion string) ([]byte, error) {
	result, err := b.ttsBreaker.Execute(func() (any, error) {
		chunks, errs := b.streaming.GenerateStream(ctx, text, emotion)
		var pcm []byte
		for chunk := range chunks {
			pcm = append(pcm, chunk...)
		}
		if err := <-errs; err != nil {
			return nil, err
		}
		if len(pcm) == 0 {
			return nil, fmt.Errorf("streaming TTS produced no audio")
		}
		return pcm, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (b *Bridge) resolveVoice(ctx context.Context, s *session, agentID string) tts.Voice {
	if agentID == "" {
		return tts.Voice{}
	}
	s.mu.Lock()
	if v, ok := s.agentVoices[agentID]; ok {
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()

	v := b.voices.Resolve(ctx, s.sessionID, agentID)
	if v.VoiceID != "" {
		s.mu.Lock()
		s.agentVoices[agentID] = v
		s.mu.Unlock()
	}
	return v
}

// publishVoiceFailure tells the agent to degrade to text. For TTS failures
// the original text rides along so nothing the agent said is lost.
func (b *Bridge) publishVoiceFailure(ctx context.Context, s *session, component, originalText string, cause error) {
	s.mu.Lock()
	agent := s.currentAgentID
	s.mu.Unlock()

	payload := map[string]any{
		"call_id":         s.callID,
		"session_id":      s.sessionID,
		"component":       component,
		"error":           cause.Error(),
		"fallback_action": "use_text_mode",
	}
	if originalText != "" {
		payload["original_text"] = originalText
	}
	if err := b.publisher.PublishEnvelopeToAgent(ctx, agent, "voice_failure", source, payload); err != nil {
		slog.Error("Failed to publish voice_failure", "call_id", s.callID, "error", err)
	}
}

// EndSession drops a call's session, cancelling timers and closing the STT
// stream.
func (b *Bridge) EndSession(callID string) {
	b.mu.Lock()
	s, ok := b.sessions[callID]
	if ok {
		delete(b.sessions, callID)
		activeSessions.Set(float64(len(b.sessions)))
	}
	b.mu.Unlock()

	if !ok {
		return
	}

	s.cancelDebounce()
	s.stopDucking()
	if s.sttClient != nil {
		if err := s.sttClient.Close(); err != nil {
			slog.Warn("Error closing STT client", "call_id", callID, "error", err)
		}
	}
	slog.Info("Bridge session ended", "call_id", callID)
}

// ActiveSessions returns the live session count.
func (b *Bridge) ActiveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Shutdown tears down every session and the streaming TTS connection.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.EndSession(id)
	}
	if b.streaming != nil {
		_ = b.streaming.Close()
	}
}
