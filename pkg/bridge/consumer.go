package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/voxos-ai/voxos/pkg/bus"
)

// callAudioMessage is the wire shape on call_audio_queue. Type selects
// which fields are meaningful.
type callAudioMessage struct {
	Type             string `json:"type"` // stream_started, call_audio, call_ended
	NotificationType string `json:"notification_type"`
	SessionID        string `json:"session_id"`
	CallID           string `json:"call_id"`
	AudioData        string `json:"audio_data"` // base64 PCM
	Source           string `json:"source"`
	TwilioCallSID    string `json:"twilio_call_sid"`
	StreamSID        string `json:"stream_sid"`
	FastMode         bool   `json:"fast_mode"`
	Payload          json.RawMessage `json:"payload"`
}

// speakRequest is the wire shape on voice_gateway_queue.
type speakRequest struct {
	SessionID    string `json:"session_id"`
	CallID       string `json:"call_id"`
	IsCallSpeech bool   `json:"is_call_speech"`
	Content      string `json:"content"`
	AgentID      string `json:"agent_id"`
	Emotion      string `json:"emotion"`
	FastMode     bool   `json:"fast_mode"`
}

// RunCallAudioConsumer consumes stream lifecycle and caller audio messages
// until ctx is cancelled. Blocks; run in its own goroutine.
func (b *Bridge) RunCallAudioConsumer(ctx context.Context, conn *bus.Conn) {
	conn.ConsumeQueue(ctx, bus.CallAudioQueue, "bridge-call-audio", b.handleCallAudio)
}

// RunSpeakConsumer consumes agent speak requests until ctx is cancelled.
func (b *Bridge) RunSpeakConsumer(ctx context.Context, conn *bus.Conn) {
	conn.ConsumeQueue(ctx, bus.VoiceGatewayQueue, "bridge-speak", b.handleSpeak)
}

func (b *Bridge) handleCallAudio(ctx context.Context, d amqp.Delivery) error {
	var msg callAudioMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		slog.Error("Dropping malformed call audio message", "error", err)
		return nil
	}

	msgType := msg.Type
	if msgType == "" {
		msgType = msg.NotificationType
	}

	// Envelope-wrapped control messages carry session/call ids in payload.
	if msg.SessionID == "" && len(msg.Payload) > 0 {
		var inner callAudioMessage
		if err := json.Unmarshal(msg.Payload, &inner); err == nil {
			if inner.SessionID != "" {
				msg.SessionID = inner.SessionID
			}
			if inner.CallID != "" {
				msg.CallID = inner.CallID
			}
		}
	}

	switch msgType {
	case "stream_started":
		src := SourceWeb
		if msg.Source == string(SourceTwilio) || msg.TwilioCallSID != "" {
			src = SourceTwilio
		}
		if err := b.InitializeStream(ctx, msg.SessionID, msg.CallID, src, msg.TwilioCallSID, msg.StreamSID); err != nil {
			slog.Error("Failed to initialize stream", "call_id", msg.CallID, "error", err)
		}
		return nil

	case "call_audio":
		pcm, err := base64.StdEncoding.DecodeString(msg.AudioData)
		if err != nil {
			slog.Error("Dropping undecodable audio chunk", "call_id", msg.CallID, "error", err)
			return nil
		}
		src := SourceWeb
		if msg.Source == string(SourceTwilio) || msg.TwilioCallSID != "" {
			src = SourceTwilio
		}
		if err := b.ProcessAudio(ctx, msg.SessionID, msg.CallID, pcm, src, msg.TwilioCallSID, msg.StreamSID, msg.FastMode); err != nil {
			slog.Error("Failed to process audio", "call_id", msg.CallID, "error", err)
		}
		return nil

	case "call_ended":
		b.EndSession(msg.CallID)
		return nil

	default:
		slog.Debug("Ignoring unknown call audio message", "type", msgType)
		return nil
	}
}

func (b *Bridge) handleSpeak(ctx context.Context, d amqp.Delivery) error {
	var req speakRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		slog.Error("Dropping malformed speak request", "error", err)
		return nil
	}
	if !req.IsCallSpeech || req.CallID == "" || req.Content == "" {
		slog.Debug("Ignoring non-call speak request")
		return nil
	}

	if err := b.AgentSpeak(ctx, req.SessionID, req.CallID, req.Content, req.AgentID, req.Emotion, req.FastMode); err != nil {
		// The failure notification already went to the agent; requeueing
		// would replay stale speech into the call.
		slog.Error("Agent speak failed", "call_id", req.CallID, "error", err)
	}
	return nil
}
