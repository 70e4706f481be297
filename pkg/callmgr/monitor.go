package callmgr

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxos-ai/voxos/pkg/models"
)

// StartTimeoutMonitor launches the background loop that ends stuck calls:
// ringing > 30 s, on hold > 5 min, connected > 30 min. Safe to call once.
func (m *Manager) StartTimeoutMonitor(ctx context.Context) {
	if m.monitorCancel != nil {
		return
	}
	ctx, m.monitorCancel = context.WithCancel(ctx)
	m.monitorDone = make(chan struct{})

	go func() {
		defer close(m.monitorDone)
		ticker := time.NewTicker(TimeoutCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkTimeouts(ctx)
			}
		}
	}()

	slog.Info("Call timeout monitor started", "interval", TimeoutCheckInterval)
}

// StopTimeoutMonitor cancels the monitor and waits for it to exit.
func (m *Manager) StopTimeoutMonitor() {
	if m.monitorCancel == nil {
		return
	}
	m.monitorCancel()
	<-m.monitorDone
	m.monitorCancel = nil
	slog.Info("Call timeout monitor stopped")
}

type timedOutCall struct {
	callID uuid.UUID
	reason string
}

func (m *Manager) checkTimeouts(ctx context.Context) {
	now := time.Now().UTC()

	// Collect under the lock, end outside it: endCall re-acquires and the
	// per-call work (broker publishes, carrier HTTP) must not extend the
	// critical section.
	m.mu.Lock()
	var expired []timedOutCall
	for _, call := range m.activeCalls {
		switch {
		case call.Status.Ringing():
			if call.RingingAt != nil {
				if d := now.Sub(call.RingingAt.UTC()); d > RingingTimeout {
					expired = append(expired, timedOutCall{call.CallID, "ringing_timeout"})
				}
			}
		case call.Status == models.CallStatusOnHold:
			if raw, ok := call.Metadata["hold_started_at"].(string); ok {
				if holdStart, err := time.Parse(time.RFC3339, raw); err == nil {
					if now.Sub(holdStart.UTC()) > HoldTimeout {
						expired = append(expired, timedOutCall{call.CallID, "hold_timeout"})
					}
				}
			}
		case call.Status == models.CallStatusConnected:
			if call.ConnectedAt != nil {
				if d := now.Sub(call.ConnectedAt.UTC()); d > MaxCallDuration {
					expired = append(expired, timedOutCall{call.CallID, "max_duration"})
				}
			}
		}
	}
	m.mu.Unlock()

	for _, tc := range expired {
		slog.Warn("Call timed out", "call_id", tc.callID, "reason", tc.reason)
		if !m.EndCall(ctx, tc.callID, "system", models.EndReasonTimeout) {
			slog.Error("Failed to end timed-out call", "call_id", tc.callID)
		}
	}
}
