package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// dtmfPattern is the only digit sequence accepted for DTMF relay. Anything
// else could smuggle TwiML into the Play verb.
var dtmfPattern = regexp.MustCompile(`^[0-9*#wW]+$`)

// ErrInvalidDTMF is returned when digits fail validation.
var ErrInvalidDTMF = errors.New("invalid DTMF digits")

// TwilioClient talks to the carrier REST API for origination and call
// control.
type TwilioClient struct {
	accountSID  string
	authToken   string
	fromNumber  string
	client      *http.Client
}

// NewTwilioClient creates the carrier REST client.
func NewTwilioClient(accountSID, authToken, fromNumber string) *TwilioClient {
	return &TwilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *TwilioClient) do(ctx context.Context, method, path string, form url.Values) (map[string]any, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, twilioAPIBase+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("carrier API returned %d: %s", resp.StatusCode, msg)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode carrier response: %w", err)
	}
	return result, nil
}

// CreateCall originates an outbound call. The webhook URLs echo session_id
// and call_id back so the answer and status callbacks can correlate.
func (c *TwilioClient) CreateCall(ctx context.Context, toNumber, webhookBaseURL, sessionID, callID string) (string, error) {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("call_id", callID)
	echo := q.Encode()

	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", c.fromNumber)
	form.Set("Url", fmt.Sprintf("%s/twilio/voice/outbound?%s", webhookBaseURL, echo))
	form.Set("StatusCallback", fmt.Sprintf("%s/twilio/voice/status?%s", webhookBaseURL, echo))
	form.Set("StatusCallbackEvent", "initiated ringing answered completed")

	result, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/Accounts/%s/Calls.json", c.accountSID), form)
	if err != nil {
		return "", err
	}
	sid, _ := result["sid"].(string)
	if sid == "" {
		return "", errors.New("carrier response missing call sid")
	}
	return sid, nil
}

// EndCall completes a call on the carrier side.
func (c *TwilioClient) EndCall(ctx context.Context, callSID string) error {
	form := url.Values{}
	form.Set("Status", "completed")
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/Accounts/%s/Calls/%s.json", c.accountSID, callSID), form)
	return err
}

// CallStatus fetches carrier-side call state.
func (c *TwilioClient) CallStatus(ctx context.Context, callSID string) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("/Accounts/%s/Calls/%s.json", c.accountSID, callSID), nil)
}

// SendSMS sends a text message. Agents may text any number; the whitelist
// gates inbound only.
func (c *TwilioClient) SendSMS(ctx context.Context, toNumber, body string) (string, error) {
	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)

	result, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/Accounts/%s/Messages.json", c.accountSID), form)
	if err != nil {
		return "", err
	}
	sid, _ := result["sid"].(string)
	return sid, nil
}

// SendDTMF plays digits into a live call. Digits are validated before they
// reach carrier markup.
func (c *TwilioClient) SendDTMF(ctx context.Context, callSID, digits string) error {
	if !dtmfPattern.MatchString(digits) {
		return fmt.Errorf("%w: %q", ErrInvalidDTMF, digits)
	}
	form := url.Values{}
	form.Set("Twiml", fmt.Sprintf("<Response><Play digits=%q></Play></Response>", digits))
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/Accounts/%s/Calls/%s.json", c.accountSID, callSID), form)
	return err
}
