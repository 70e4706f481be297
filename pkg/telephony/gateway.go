package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// gatewayClient is the adapter's client for the gateway's internal call
// endpoints: registering inbound carrier calls and marking calls answered.
type gatewayClient struct {
	baseURL     string
	internalKey string
	client      *http.Client
}

func newGatewayClient(baseURL, internalKey string) *gatewayClient {
	return &gatewayClient{
		baseURL:     baseURL,
		internalKey: internalKey,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *gatewayClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Key", g.internalKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d for %s", resp.StatusCode, path)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// RegisterInboundCall creates the Call for an inbound carrier call so call
// control (hang up, transfer) works from the first media frame. Returns the
// authoritative call id.
func (g *gatewayClient) RegisterInboundCall(ctx context.Context, sessionID, callID, twilioCallSID, callerNumber, callerName string) (string, error) {
	var result struct {
		Success bool   `json:"success"`
		CallID  string `json:"call_id"`
		Error   string `json:"error"`
	}
	err := g.post(ctx, "/api/v1/twilio/call/register-inbound", map[string]any{
		"session_id":          sessionID,
		"call_id":             callID,
		"twilio_call_sid":     twilioCallSID,
		"caller_phone_number": callerNumber,
		"caller_name":         callerName,
	}, &result)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("inbound registration rejected: %s", result.Error)
	}
	return result.CallID, nil
}

// NotifyCallAnswered transitions the call to connected. The answer endpoint
// is idempotent, so racing the status callback is harmless.
func (g *gatewayClient) NotifyCallAnswered(ctx context.Context, callID, twilioCallSID string) error {
	return g.post(ctx, fmt.Sprintf("/api/v1/calls/%s/answer", callID), map[string]any{
		"answered_by":     "user",
		"twilio_call_sid": twilioCallSID,
	}, nil)
}
