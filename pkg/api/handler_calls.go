package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voxos-ai/voxos/pkg/models"
)

// internalKeyOK verifies the shared key on internal-only dispatch branches.
func (s *Server) internalKeyOK(c *gin.Context) bool {
	if c.GetHeader("X-Internal-Key") != s.internalKey {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid internal API key"})
		return false
	}
	return true
}

// callRootDispatch handles POST /calls/<segment> where the only valid
// segment is "initiate".
func (s *Server) callRootDispatch(c *gin.Context) {
	if c.Param("call_id") != "initiate" {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown calls endpoint"})
		return
	}
	s.initiateCallHandler(c)
}

// callActionDispatch handles POST /calls/{call_id}/{action} plus the
// internal bridge callbacks POST /calls/internal/{transcription,tts-audio}.
func (s *Server) callActionDispatch(c *gin.Context) {
	action := c.Param("action")

	if c.Param("call_id") == "internal" {
		if !s.internalKeyOK(c) {
			return
		}
		switch action {
		case "transcription":
			s.transcriptionHandler(c)
		case "tts-audio":
			s.ttsAudioHandler(c)
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown internal endpoint"})
		}
		return
	}

	switch action {
	case "answer":
		if !s.internalKeyOK(c) {
			return
		}
		s.answerCallHandler(c)
	case "decline":
		s.declineCallHandler(c)
	case "end":
		s.endCallHandler(c)
	case "hold":
		s.holdCallHandler(c)
	case "resume":
		s.resumeCallHandler(c)
	case "transfer":
		s.transferCallHandler(c)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown call action"})
	}
}

// callGetDispatch handles GET /calls/active/{session_id} and
// GET /calls/{call_id}/transcripts.
func (s *Server) callGetDispatch(c *gin.Context) {
	if c.Param("call_id") == "active" {
		s.activeCallBySession(c, c.Param("sub"))
		return
	}
	if c.Param("sub") == "transcripts" {
		s.callTranscriptsHandler(c)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown calls endpoint"})
}

func parseCallID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("call_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call_id"})
		return uuid.Nil, false
	}
	return id, true
}

type initiateCallRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	InitiatedBy string `json:"initiated_by" binding:"required"`
	TargetAgent string `json:"target_agent"`
	FastMode    bool   `json:"fast_mode"`
}

func (s *Server) initiateCallHandler(c *gin.Context) {
	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	call, err := s.callManager.InitiateCall(c.Request.Context(), req.SessionID, req.InitiatedBy, req.TargetAgent, req.FastMode)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, call)
}

func (s *Server) activeCallBySession(c *gin.Context, sessionID string) {
	call := s.callManager.GetActiveCall(sessionID)
	if call == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active call"})
		return
	}
	c.JSON(http.StatusOK, call)
}

type answerCallRequest struct {
	AnsweredBy string `json:"answered_by" binding:"required"`
}

func (s *Server) answerCallHandler(c *gin.Context) {
	callID, ok := parseCallID(c)
	if !ok {
		return
	}
	var req answerCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.callManager.AnswerCall(c.Request.Context(), callID, req.AnsweredBy) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "call cannot be answered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type declineCallRequest struct {
	DeclinedBy string `json:"declined_by" binding:"required"`
	Reason     string `json:"reason"`
}

func (s *Server) declineCallHandler(c *gin.Context) {
	callID, ok := parseCallID(c)
	if !ok {
		return
	}
	var req declineCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.callManager.DeclineCall(c.Request.Context(), callID, req.DeclinedBy, req.Reason) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "call cannot be declined"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type endCallRequest struct {
	EndedBy string `json:"ended_by" binding:"required"`
	Reason  string `json:"reason"`
}

func (s *Server) endCallHandler(c *gin.Context) {
	callID, ok := parseCallID(c)
	if !ok {
		return
	}
	var req endCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.callManager.EndCall(c.Request.Context(), callID, req.EndedBy, models.CallEndReason(req.Reason)) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "call cannot be ended"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type holdCallRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) holdCallHandler(c *gin.Context) {
	callID, ok := parseCallID(c)
	if !ok {
		return
	}
	var req holdCallRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual"
	}
	if !s.callManager.HoldCall(c.Request.Context(), callID, req.Reason) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "call cannot be held"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) resumeCallHandler(c *gin.Context) {
	callID, ok := parseCallID(c)
	if !ok {
		return
	}
	if !s.callManager.ResumeCall(c.Request.Context(), callID) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "call cannot be resumed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type transferCallRequest struct {
	FromAgent    string `json:"from_agent" binding:"required"`
	ToAgent      string `json:"to_agent" binding:"required"`
	Announcement string `json:"announcement"`
}

func (s *Server) transferCallHandler(c *gin.Context) {
	callID, ok := parseCallID(c)
	if !ok {
		return
	}
	var req transferCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.callManager.TransferCall(c.Request.Context(), callID, req.FromAgent, req.ToAgent, req.Announcement) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "call cannot be transferred"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) callTranscriptsHandler(c *gin.Context) {
	callID, ok := parseCallID(c)
	if !ok {
		return
	}
	transcripts, err := s.callManager.ListTranscripts(c.Request.Context(), callID)
	if err != nil {
		slog.Error("Failed to list transcripts", "call_id", callID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transcripts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": callID, "transcripts": transcripts})
}

type registerInboundRequest struct {
	SessionID         string `json:"session_id" binding:"required"`
	CallID            string `json:"call_id"`
	TwilioCallSID     string `json:"twilio_call_sid" binding:"required"`
	CallerPhoneNumber string `json:"caller_phone_number"`
	CallerName        string `json:"caller_name"`
}

// registerInboundCallHandler creates the Call for an inbound carrier call.
// Idempotent per carrier SID.
func (s *Server) registerInboundCallHandler(c *gin.Context) {
	var req registerInboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	call, err := s.callManager.CreateCarrierInboundCall(c.Request.Context(),
		req.TwilioCallSID, req.CallerPhoneNumber, "", req.CallID)
	if err != nil {
		slog.Error("Failed to register inbound call", "twilio_call_sid", req.TwilioCallSID, "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "call_id": call.CallID.String()})
}
