package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/voxos-ai/voxos/pkg/bus"
)

const (
	// mulawFrameBytes is 20 ms of 8 kHz mulaw, the carrier's expected frame.
	mulawFrameBytes = 160
	// framePacing stays slightly ahead of the 20 ms playback rate so the
	// carrier's jitter buffer never runs dry mid-utterance.
	framePacing = 15 * time.Millisecond
)

// ttsMessage is the wire shape on twilio_tts_queue.
type ttsMessage struct {
	CallSID   string `json:"call_sid"`
	StreamSID string `json:"stream_sid"`
	AudioData string `json:"audio_data"` // base64 mulaw
	CallID    string `json:"call_id"`
}

// runTTSConsumer reads synthesized mulaw audio from the bridge and writes
// paced 160-byte media frames onto the matching live carrier socket.
func (a *Adapter) runTTSConsumer(ctx context.Context, conn *bus.Conn) {
	conn.ConsumeQueue(ctx, bus.TwilioTTSQueue, "telephony-tts", func(ctx context.Context, d amqp.Delivery) error {
		var msg ttsMessage
		if err := json.Unmarshal(d.Body, &msg); err != nil {
			slog.Error("Dropping malformed TTS message", "error", err)
			return nil
		}

		stream := a.streams.get(msg.CallSID)
		if stream == nil {
			// Stream already gone (caller hung up); replaying later would
			// speak into a dead line.
			slog.Warn("No live stream for TTS audio", "call_sid", msg.CallSID, "call_id", msg.CallID)
			return nil
		}

		mulaw, err := base64.StdEncoding.DecodeString(msg.AudioData)
		if err != nil {
			slog.Error("Undecodable TTS audio", "call_id", msg.CallID, "error", err)
			return nil
		}

		frames := 0
		for i := 0; i < len(mulaw); i += mulawFrameBytes {
			end := min(i+mulawFrameBytes, len(mulaw))
			frame := mulaw[i:end]

			if err := stream.WriteJSON(map[string]any{
				"event":     "media",
				"streamSid": msg.StreamSID,
				"media": map[string]any{
					"payload": base64.StdEncoding.EncodeToString(frame),
				},
			}); err != nil {
				slog.Warn("Carrier media write failed mid-playback", "call_sid", msg.CallSID, "error", err)
				return nil
			}
			frames++

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(framePacing):
			}
		}

		// A mark after the last frame lets the carrier report playback
		// completion.
		_ = stream.WriteJSON(map[string]any{
			"event":     "mark",
			"streamSid": msg.StreamSID,
			"mark":      map[string]any{"name": "tts_complete"},
		})

		slog.Info("Streamed TTS audio to carrier",
			"call_sid", msg.CallSID, "bytes", len(mulaw), "frames", frames)
		return nil
	})
}
