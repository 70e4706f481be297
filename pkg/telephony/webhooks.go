package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voxos-ai/voxos/pkg/bus"
)

// handleIncomingCall answers the carrier's inbound voice webhook:
// concurrency cap, whitelist gate, then TwiML that connects a bidirectional
// media stream back to this adapter.
func (a *Adapter) handleIncomingCall(c *gin.Context) {
	if !a.verifySignature(c) {
		return
	}

	callSID := c.PostForm("CallSid")
	from := c.PostForm("From")
	to := c.PostForm("To")
	callStatus := c.PostForm("CallStatus")

	slog.Info("Incoming call",
		"call_sid", callSID, "from", redactPhone(from), "to", to, "status", callStatus)

	if a.streams.count() >= a.cfg.MaxConcurrentCalls {
		slog.Warn("Rejecting call: concurrent call cap reached", "cap", a.cfg.MaxConcurrentCalls)
		c.Data(http.StatusOK, "application/xml", []byte(busyTwiML()))
		return
	}

	allowed, err := a.store.IsPhoneNumberAllowed(c.Request.Context(), from)
	if err != nil {
		slog.Error("Whitelist lookup failed", "error", err)
		c.Data(http.StatusOK, "application/xml", []byte(rejectTwiML()))
		return
	}
	if !allowed {
		slog.Warn("Rejecting call from non-whitelisted number", "from", redactPhone(from))
		c.Data(http.StatusOK, "application/xml", []byte(rejectTwiML()))
		return
	}

	callerName, err := a.store.AllowedNumberDisplayName(c.Request.Context(), from)
	if err != nil {
		slog.Warn("Caller name lookup failed", "error", err)
	}
	if callerName == "" {
		callerName = c.PostForm("CallerName")
	}
	if callerName == "" {
		callerName = "Unknown"
	}

	sessionID := "twilio_" + callSID
	callID := uuid.New().String()

	c.Data(http.StatusOK, "application/xml", []byte(streamTwiML(
		"Connecting you now. Please wait.",
		a.mediaStreamURL(sessionID),
		map[string]string{
			"session_id":          sessionID,
			"call_id":             callID,
			"twilio_call_sid":     callSID,
			"caller_phone_number": from,
			"caller_name":         callerName,
		},
	)))

	slog.Info("Accepted incoming call", "session_id", sessionID, "call_id", callID)
}

// handleOutboundAnswer runs when the called party picks up an outbound
// call; it returns TwiML to start the media stream.
func (a *Adapter) handleOutboundAnswer(c *gin.Context) {
	if !a.verifySignature(c) {
		return
	}

	callSID := c.PostForm("CallSid")
	to := c.PostForm("To")

	sessionID := c.Query("session_id")
	callID := c.Query("call_id")
	if sessionID == "" {
		sessionID = "twilio_out_" + callSID
	}
	if callID == "" {
		callID = uuid.New().String()
	}

	slog.Info("Outbound call answered",
		"call_sid", callSID, "to", redactPhone(to), "session_id", sessionID)

	c.Data(http.StatusOK, "application/xml", []byte(streamTwiML(
		"Please hold while we connect your call.",
		a.mediaStreamURL(sessionID),
		map[string]string{
			"session_id":          sessionID,
			"call_id":             callID,
			"twilio_call_sid":     callSID,
			"caller_phone_number": to,
			"direction":           "outbound",
		},
	)))
}

// handleCallStatus consumes carrier status callbacks. in-progress
// transitions the call to connected (idempotent with the media-stream
// path); terminal statuses publish call_ended to the bridge.
func (a *Adapter) handleCallStatus(c *gin.Context) {
	if !a.verifySignature(c) {
		return
	}

	callSID := c.PostForm("CallSid")
	callStatus := c.PostForm("CallStatus")
	duration := c.PostForm("CallDuration")
	from := c.PostForm("From")

	slog.Info("Call status update", "call_sid", callSID, "status", callStatus, "duration", duration)

	callID := c.Query("call_id")
	sessionID := c.Query("session_id")
	if callID == "" || sessionID == "" {
		dbCallID, dbSessionID, err := a.store.CallBySID(c.Request.Context(), callSID)
		if err != nil {
			slog.Error("Call lookup failed", "call_sid", callSID, "error", err)
		}
		if callID == "" {
			callID = dbCallID
		}
		if sessionID == "" {
			sessionID = dbSessionID
		}
	}

	if callID == "" {
		slog.Warn("No call found for status callback", "call_sid", callSID)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	if callStatus == "in-progress" {
		if err := a.gateway.NotifyCallAnswered(c.Request.Context(), callID, callSID); err != nil {
			slog.Error("Failed to notify gateway of answer", "call_id", callID, "error", err)
		}
	}

	switch callStatus {
	case "completed", "busy", "failed", "no-answer", "canceled":
		if sessionID == "" {
			sessionID = "twilio_" + callSID
		}
		a.publishCallEnded(c.Request.Context(), sessionID, callID, callSID, from, map[string]any{
			"final_status": callStatus,
			"duration":     duration,
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// publishCallEnded tells the bridge to tear down the call's session.
func (a *Adapter) publishCallEnded(ctx context.Context, sessionID, callID, callSID, phoneNumber string, metadata map[string]any) {
	msg := map[string]any{
		"type":            "call_ended",
		"session_id":      sessionID,
		"call_id":         callID,
		"twilio_call_sid": callSID,
		"metadata":        metadata,
	}
	if err := a.publisher.PublishToQueue(ctx, bus.CallAudioQueue, msg); err != nil {
		slog.Error("Failed to publish call_ended", "call_id", callID, "error", err)
	}
	if phoneNumber != "" {
		slog.Info("Published call_ended", "call_id", callID, "from", redactPhone(phoneNumber))
	}
}

// mediaStreamURL builds the public wss:// URL the carrier connects back to.
func (a *Adapter) mediaStreamURL(sessionID string) string {
	host := a.cfg.WebhookBaseURL
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	return fmt.Sprintf("wss://%s/twilio/media-stream/%s", host, sessionID)
}
