package callmgr

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPCarrierControl terminates carrier legs through the telephony adapter's
// internal API.
type HTTPCarrierControl struct {
	baseURL     string
	internalKey string
	client      *http.Client
}

// NewHTTPCarrierControl creates a carrier control client.
func NewHTTPCarrierControl(baseURL, internalKey string) *HTTPCarrierControl {
	return &HTTPCarrierControl{
		baseURL:     baseURL,
		internalKey: internalKey,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// TerminateCall asks the adapter to end the carrier leg of a call.
func (c *HTTPCarrierControl) TerminateCall(ctx context.Context, twilioCallSID string) error {
	url := fmt.Sprintf("%s/twilio/call/%s/end", c.baseURL, twilioCallSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Internal-Key", c.internalKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("carrier terminate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("carrier terminate returned %d", resp.StatusCode)
	}
	return nil
}
