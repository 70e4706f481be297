package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxos-ai/voxos/pkg/audio"
	"github.com/voxos-ai/voxos/pkg/bus"
)

// twilioEvent is one JSON event on the carrier media WebSocket.
type twilioEvent struct {
	Event string `json:"event"` // connected, start, media, mark, stop
	Start *struct {
		StreamSID        string            `json:"streamSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"` // base64 mulaw
	} `json:"media,omitempty"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
}

// mediaSession is one live carrier stream's state.
type mediaSession struct {
	sessionID    string
	callID       string
	callSID      string
	streamSID    string
	callerNumber string
	callerName   string
	buffer       *audio.ChunkBuffer
}

// handleMediaStream terminates the carrier's bidirectional media WebSocket.
// Inbound media is transcoded mulaw→PCM, buffered to ≥100 ms, and published
// to the bridge; the TTS consumer writes outbound media on the same socket.
func (a *Adapter) handleMediaStream(c *gin.Context) {
	sessionID := c.Param("session_id")

	ws, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("Media stream upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	conn := &mediaConn{conn: ws}

	slog.Info("Carrier media stream accepted", "session_id", sessionID)

	sess := &mediaSession{
		sessionID: sessionID,
		buffer:    audio.NewChunkBuffer(),
	}
	ctx := c.Request.Context()

	defer a.cleanupMediaStream(sess, conn)

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(30 * time.Second))
	})

	for {
		_ = ws.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, data, err := ws.ReadMessage()
		if err != nil {
			slog.Info("Carrier media stream closed", "session_id", sessionID, "error", err)
			return
		}

		var ev twilioEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("Unparseable carrier event", "session_id", sessionID, "error", err)
			continue
		}

		switch ev.Event {
		case "connected":
			slog.Info("Carrier stream connected", "session_id", sessionID)

		case "start":
			a.handleStreamStart(ctx, sess, conn, &ev)

		case "media":
			a.handleStreamMedia(ctx, sess, &ev)

		case "mark":
			if ev.Mark != nil {
				slog.Debug("Carrier mark received", "name", ev.Mark.Name)
			}

		case "stop":
			slog.Info("Carrier stream stopped", "session_id", sessionID)
			return

		default:
			slog.Debug("Unknown carrier event", "event", ev.Event)
		}
	}
}

func (a *Adapter) handleStreamStart(ctx context.Context, sess *mediaSession, conn *mediaConn, ev *twilioEvent) {
	if ev.Start == nil {
		return
	}
	params := ev.Start.CustomParameters
	sess.streamSID = ev.Start.StreamSID
	sess.callID = params["call_id"]
	sess.callSID = params["twilio_call_sid"]
	sess.callerNumber = params["caller_phone_number"]
	sess.callerName = params["caller_name"]

	a.streams.put(sess.callSID, conn)
	activeStreams.Set(float64(a.streams.count()))

	slog.Info("Carrier stream started",
		"session_id", sess.sessionID, "stream_sid", sess.streamSID,
		"caller", redactPhone(sess.callerNumber))

	direction := params["direction"]
	callSource := "twilio_inbound"
	if direction == "outbound" {
		callSource = "twilio_outbound"
	}
	if sess.callID != "" && sess.callSID != "" {
		if err := a.store.UpdateCallCarrierInfo(ctx, sess.callID, sess.callSID, sess.callerNumber, callSource); err != nil {
			slog.Warn("Failed to stamp carrier info", "call_id", sess.callID, "error", err)
		}
	}

	// Declare the stream to the bridge before any audio so greeting TTS has
	// an egress identifier from the first moment.
	if err := a.publisher.PublishToQueue(ctx, bus.CallAudioQueue, map[string]any{
		"type":            "stream_started",
		"session_id":      sess.sessionID,
		"call_id":         sess.callID,
		"source":          "twilio",
		"twilio_call_sid": sess.callSID,
		"stream_sid":      sess.streamSID,
	}); err != nil {
		slog.Error("Failed to publish stream_started", "call_id", sess.callID, "error", err)
	}

	if direction != "outbound" {
		// The media stream only starts once the caller is on the line, so
		// register the call and immediately answer it.
		registeredID, err := a.gateway.RegisterInboundCall(ctx,
			sess.sessionID, sess.callID, sess.callSID, sess.callerNumber, sess.callerName)
		if err != nil {
			slog.Error("Failed to register inbound call", "call_id", sess.callID, "error", err)
		} else if registeredID != "" {
			sess.callID = registeredID
			if err := a.gateway.NotifyCallAnswered(ctx, registeredID, sess.callSID); err != nil {
				slog.Error("Failed to answer inbound call", "call_id", registeredID, "error", err)
			}
		}
	} else if sess.callID != "" {
		if err := a.gateway.NotifyCallAnswered(ctx, sess.callID, sess.callSID); err != nil {
			slog.Error("Failed to answer outbound call", "call_id", sess.callID, "error", err)
		}
	}
}

func (a *Adapter) handleStreamMedia(ctx context.Context, sess *mediaSession, ev *twilioEvent) {
	if ev.Media == nil || ev.Media.Payload == "" {
		return
	}

	mulaw, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
	if err != nil {
		slog.Warn("Undecodable media payload", "session_id", sess.sessionID, "error", err)
		return
	}

	pcm := audio.MulawToPCM(mulaw)
	if dropped := sess.buffer.Write(pcm); dropped > 0 {
		slog.Warn("Media buffer overflow, dropped oldest bytes",
			"session_id", sess.sessionID, "dropped", dropped)
	}

	chunk := sess.buffer.TakeChunk()
	if chunk == nil {
		return
	}
	a.publishCallAudio(ctx, sess, chunk)
}

func (a *Adapter) publishCallAudio(ctx context.Context, sess *mediaSession, pcm []byte) {
	if err := a.publisher.PublishToQueue(ctx, bus.CallAudioQueue, map[string]any{
		"type":            "call_audio",
		"session_id":      sess.sessionID,
		"call_id":         sess.callID,
		"audio_data":      base64.StdEncoding.EncodeToString(pcm),
		"source":          "twilio",
		"twilio_call_sid": sess.callSID,
		"stream_sid":      sess.streamSID,
	}); err != nil {
		slog.Error("Failed to publish call audio", "call_id", sess.callID, "error", err)
	}
}

// cleanupMediaStream flushes buffered audio and announces the call's end,
// even when individual steps fail.
func (a *Adapter) cleanupMediaStream(sess *mediaSession, conn *mediaConn) {
	if sess.callSID != "" {
		a.streams.remove(sess.callSID)
		activeStreams.Set(float64(a.streams.count()))
	}
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if tail := sess.buffer.Flush(); len(tail) > 0 {
		a.publishCallAudio(ctx, sess, tail)
	}

	a.publishCallEnded(ctx, sess.sessionID, sess.callID, sess.callSID, sess.callerNumber,
		map[string]any{"reason": "stream_closed"})

	slog.Info("Carrier media stream cleanup complete", "session_id", sess.sessionID)
}
