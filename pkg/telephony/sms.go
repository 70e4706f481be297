package telephony

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxos-ai/voxos/pkg/bus"
)

// handleIncomingSMS gates inbound texts on the whitelist, then notifies the
// primary agent. Non-whitelisted senders are logged (redacted) and ignored.
func (a *Adapter) handleIncomingSMS(c *gin.Context) {
	if !a.verifySignature(c) {
		return
	}

	from := c.PostForm("From")
	body := c.PostForm("Body")
	messageSID := c.PostForm("MessageSid")

	allowed, err := a.store.IsPhoneNumberAllowed(c.Request.Context(), from)
	if err != nil {
		slog.Error("SMS whitelist lookup failed", "error", err)
		c.String(http.StatusOK, "")
		return
	}
	if !allowed {
		slog.Info("Ignoring SMS from non-whitelisted number", "from", redactPhone(from))
		c.String(http.StatusOK, "")
		return
	}

	senderName, err := a.store.AllowedNumberDisplayName(c.Request.Context(), from)
	if err != nil {
		slog.Warn("SMS sender name lookup failed", "error", err)
	}

	if err := a.publisher.PublishEnvelopeToAgent(c.Request.Context(), bus.PrimaryAgentID, "incoming_sms", "telephony", map[string]any{
		"message_sid":  messageSID,
		"from_number":  from,
		"sender_name":  senderName,
		"content":      body,
		"content_type": "sms",
	}); err != nil {
		slog.Error("Failed to publish incoming SMS", "error", err)
	}

	slog.Info("Incoming SMS routed to agent", "from", redactPhone(from), "chars", len(body))
	c.String(http.StatusOK, "")
}

type sendSMSRequest struct {
	ToPhoneNumber string `json:"to_phone_number" binding:"required"`
	Body          string `json:"body" binding:"required"`
}

// handleSendSMS sends a text on behalf of an agent. Outbound is not
// whitelist-gated.
func (a *Adapter) handleSendSMS(c *gin.Context) {
	var req sendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sid, err := a.twilio.SendSMS(c.Request.Context(), req.ToPhoneNumber, req.Body)
	if err != nil {
		slog.Error("SMS send failed", "to", redactPhone(req.ToPhoneNumber), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "failed to send SMS"})
		return
	}

	slog.Info("SMS sent", "to", redactPhone(req.ToPhoneNumber), "message_sid", sid)
	c.JSON(http.StatusOK, gin.H{"success": true, "message_sid": sid})
}
