package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/voxos-ai/voxos/pkg/audio"
	"github.com/voxos-ai/voxos/pkg/bus"
)

// egress routes synthesized audio to the call's transport. pcmRate > 0
// means audioData is raw PCM at that rate (streaming path); pcmRate == 0
// means audioData is a WAV or MP3 blob from a buffered provider.
func (b *Bridge) egress(ctx context.Context, s *session, audioData []byte, pcmRate int, text, agentID string) error {
	s.mu.Lock()
	src := s.source
	callSID := s.twilioCallSID
	streamSID := s.twilioStreamSID
	s.mu.Unlock()

	if src == SourceTwilio {
		return b.egressTelephony(ctx, s, audioData, pcmRate, callSID, streamSID)
	}
	return b.egressWeb(ctx, s, audioData, pcmRate, text, agentID)
}

// egressWeb wraps PCM in a WAV header and hands it to the gateway, which
// relays it to the browser WebSocket as a binary frame.
func (b *Bridge) egressWeb(ctx context.Context, s *session, audioData []byte, pcmRate int, text, agentID string) error {
	var wav []byte
	if pcmRate > 0 {
		wav = audio.WrapWAV(audioData, pcmRate)
	} else if audio.IsWAV(audioData) {
		wav = audioData
	} else {
		pcm, rate, err := audio.DecodeToPCM(audioData)
		if err != nil {
			return fmt.Errorf("failed to decode TTS audio for web egress: %w", err)
		}
		wav = audio.WrapWAV(pcm, rate)
	}

	if err := b.gateway.SendTTSAudio(ctx, s.sessionID, s.callID, wav, text, agentID); err != nil {
		return fmt.Errorf("failed to deliver TTS audio to gateway: %w", err)
	}
	slog.Info("Sent TTS audio to gateway", "call_id", s.callID, "bytes", len(wav))
	return nil
}

// egressTelephony transcodes to carrier format (8 kHz mulaw) and publishes
// to the adapter's TTS queue. The adapter owns frame chunking and pacing.
func (b *Bridge) egressTelephony(ctx context.Context, s *session, audioData []byte, pcmRate int, callSID, streamSID string) error {
	if callSID == "" || streamSID == "" {
		return fmt.Errorf("cannot egress to carrier for call %s: missing stream identifiers", s.callID)
	}

	pcm := audioData
	rate := pcmRate
	if rate == 0 {
		decoded, decodedRate, err := audio.DecodeToPCM(audioData)
		if err != nil {
			return fmt.Errorf("failed to decode TTS audio for carrier egress: %w", err)
		}
		pcm, rate = decoded, decodedRate
	}

	mulaw := audio.PCMToMulaw(pcm, rate)

	if err := b.publisher.PublishToQueue(ctx, bus.TwilioTTSQueue, map[string]any{
		"call_sid":   callSID,
		"stream_sid": streamSID,
		"audio_data": base64.StdEncoding.EncodeToString(mulaw),
		"call_id":    s.callID,
	}); err != nil {
		return fmt.Errorf("failed to publish carrier TTS audio: %w", err)
	}

	slog.Info("Sent TTS audio to carrier queue", "call_id", s.callID, "mulaw_bytes", len(mulaw))
	return nil
}
