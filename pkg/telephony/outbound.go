package telephony

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voxos-ai/voxos/pkg/bus"
)

type outboundCallRequest struct {
	ToPhoneNumber string `json:"to_phone_number" binding:"required"`
	SessionID     string `json:"session_id" binding:"required"`
	AgentID       string `json:"agent_id"`
}

// handleOutboundCall originates a carrier call on behalf of an agent. The
// webhook URLs echo session and call ids so the answer flow can correlate.
func (a *Adapter) handleOutboundCall(c *gin.Context) {
	var req outboundCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if a.cfg.WebhookBaseURL == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WEBHOOK_BASE_URL not configured"})
		return
	}

	callID := uuid.New().String()
	callSID, err := a.twilio.CreateCall(c.Request.Context(), req.ToPhoneNumber, a.cfg.WebhookBaseURL, req.SessionID, callID)
	if err != nil {
		slog.Error("Outbound origination failed", "to", redactPhone(req.ToPhoneNumber), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to originate call"})
		return
	}

	if err := a.store.UpdateCallCarrierInfo(c.Request.Context(), callID, callSID, req.ToPhoneNumber, "twilio_outbound"); err != nil {
		slog.Warn("Failed to stamp outbound carrier info", "call_id", callID, "error", err)
	}

	if err := a.publisher.PublishToQueue(c.Request.Context(), bus.CallAudioQueue, map[string]any{
		"type":            "outbound_call_initiated",
		"session_id":      req.SessionID,
		"call_id":         callID,
		"twilio_call_sid": callSID,
	}); err != nil {
		slog.Error("Failed to publish outbound_call_initiated", "call_id", callID, "error", err)
	}

	slog.Info("Outbound call originated",
		"call_id", callID, "call_sid", callSID, "to", redactPhone(req.ToPhoneNumber))

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"call_id":         callID,
		"twilio_call_sid": callSID,
	})
}

// handleCallRoot handles POST /call/<segment> where the only valid segment
// is "outbound".
func (a *Adapter) handleCallRoot(c *gin.Context) {
	if c.Param("sid") != "outbound" {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown call endpoint"})
		return
	}
	a.handleOutboundCall(c)
}

// handleCallAction dispatches POST /call/{sid}/{end,dtmf}.
func (a *Adapter) handleCallAction(c *gin.Context) {
	switch c.Param("action") {
	case "end":
		a.handleEndCall(c)
	case "dtmf":
		a.handleSendDTMF(c)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown call action"})
	}
}

// handleEndCall terminates the carrier leg of a call.
func (a *Adapter) handleEndCall(c *gin.Context) {
	sid := c.Param("sid")
	if err := a.twilio.EndCall(c.Request.Context(), sid); err != nil {
		slog.Error("Failed to end carrier call", "call_sid", sid, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "failed to end call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleCallInfo proxies carrier-side call state.
func (a *Adapter) handleCallInfo(c *gin.Context) {
	sid := c.Param("sid")
	status, err := a.twilio.CallStatus(c.Request.Context(), sid)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch call status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

type dtmfRequest struct {
	Digits string `json:"digits" binding:"required"`
}

// handleSendDTMF relays validated digits into a live call.
func (a *Adapter) handleSendDTMF(c *gin.Context) {
	var req dtmfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.twilio.SendDTMF(c.Request.Context(), c.Param("sid"), req.Digits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
