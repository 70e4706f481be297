package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// VoiceResolver looks up an agent's effective voice through the gateway and
// caches results so repeated speak requests on a call don't refetch.
type VoiceResolver struct {
	gatewayURL  string
	internalKey string
	client      *http.Client

	mu    sync.Mutex
	cache map[string]Voice // "<user>/<agent>" → voice
}

// NewVoiceResolver creates a resolver against the gateway's internal API.
func NewVoiceResolver(gatewayURL, internalKey string) *VoiceResolver {
	return &VoiceResolver{
		gatewayURL:  gatewayURL,
		internalKey: internalKey,
		client:      &http.Client{Timeout: 5 * time.Second},
		cache:       make(map[string]Voice),
	}
}

// Resolve returns the agent's voice, or the zero Voice (caller falls back
// to defaults) when the lookup fails.
func (r *VoiceResolver) Resolve(ctx context.Context, userID, agentID string) Voice {
	key := userID + "/" + agentID

	r.mu.Lock()
	if v, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()

	url := fmt.Sprintf("%s/api/v1/agent-voices/effective/%s/%s", r.gatewayURL, userID, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Voice{}
	}
	req.Header.Set("X-Internal-Key", r.internalKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return Voice{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Voice{}
	}

	var v Voice
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return Voice{}
	}

	r.mu.Lock()
	r.cache[key] = v
	r.mu.Unlock()
	return v
}
