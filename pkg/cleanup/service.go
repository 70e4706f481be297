// Package cleanup provides data retention sweeps.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxos-ai/voxos/pkg/notify"
)

// Service periodically enforces retention on the pending-notification
// store: undelivered rows past their TTL and delivered rows past a day are
// removed. Idempotent and safe to run from multiple gateway instances.
type Service struct {
	store    *notify.PendingStore
	ttl      time.Duration
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service.
func NewService(store *notify.PendingStore, ttl, interval time.Duration) *Service {
	return &Service{store: store, ttl: ttl, interval: interval}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started", "pending_ttl", s.ttl, "interval", s.interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	removed, err := s.store.Sweep(ctx, s.ttl)
	if err != nil {
		slog.Error("Pending notification sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Swept pending notifications", "removed", removed)
	}
}
