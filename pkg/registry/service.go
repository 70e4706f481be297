// Package registry tracks deployed app backends: registration, periodic
// health checks, and state/action proxying.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/voxos-ai/voxos/pkg/models"
)

// Service holds the registered apps and runs the health-check loop.
type Service struct {
	interval  time.Duration
	threshold int
	client    *http.Client

	mu   sync.Mutex
	apps map[string]*models.RegisteredApp

	statusChanged func(app *models.RegisteredApp) // optional notification hook

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the registry.
func NewService(interval time.Duration, unhealthyThreshold int) *Service {
	return &Service{
		interval:  interval,
		threshold: unhealthyThreshold,
		client:    &http.Client{Timeout: 5 * time.Second},
		apps:      make(map[string]*models.RegisteredApp),
	}
}

// OnStatusChange installs a hook invoked whenever an app's health status
// flips. The hook must not block.
func (s *Service) OnStatusChange(fn func(app *models.RegisteredApp)) {
	s.statusChanged = fn
}

// Register adds or replaces an app.
func (s *Service) Register(appID, containerURL string, manifest map[string]any) *models.RegisteredApp {
	s.mu.Lock()
	defer s.mu.Unlock()

	app := &models.RegisteredApp{
		AppID:        appID,
		ContainerURL: containerURL,
		Manifest:     manifest,
		Status:       models.AppStatusUnknown,
		RegisteredAt: time.Now().UTC(),
	}
	s.apps[appID] = app
	slog.Info("App registered", "app_id", appID, "url", containerURL)
	return cloneApp(app)
}

// Unregister removes an app. Returns false when unknown.
func (s *Service) Unregister(appID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[appID]; !ok {
		return false
	}
	delete(s.apps, appID)
	slog.Info("App unregistered", "app_id", appID)
	return true
}

// Get returns an app, or nil.
func (s *Service) Get(appID string) *models.RegisteredApp {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app, ok := s.apps[appID]; ok {
		return cloneApp(app)
	}
	return nil
}

// List returns every registered app.
func (s *Service) List() []*models.RegisteredApp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.RegisteredApp, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, cloneApp(app))
	}
	return out
}

// ContainerURL returns the app's base URL for proxying, or an error when
// the app is unknown.
func (s *Service) ContainerURL(appID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return "", fmt.Errorf("app %s not registered", appID)
	}
	return app.ContainerURL, nil
}

// StartHealthChecker launches the background health loop.
func (s *Service) StartHealthChecker(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.checkAll(ctx)
			}
		}
	}()

	slog.Info("Health checker started", "interval", s.interval, "threshold", s.threshold)
}

// StopHealthChecker cancels the loop and waits for it.
func (s *Service) StopHealthChecker() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Service) checkAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.apps))
	for id := range s.apps {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.checkOne(ctx, id)
	}
}

func (s *Service) checkOne(ctx context.Context, appID string) {
	s.mu.Lock()
	app, ok := s.apps[appID]
	if !ok {
		s.mu.Unlock()
		return
	}
	url := app.ContainerURL + "/health"
	s.mu.Unlock()

	healthy := s.probe(ctx, url)

	s.mu.Lock()
	app, ok = s.apps[appID]
	if !ok {
		s.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	app.LastHealthCheck = &now
	previous := app.Status

	if healthy {
		app.HealthCheckFailures = 0
		app.Status = models.AppStatusHealthy
	} else {
		app.HealthCheckFailures++
		if app.HealthCheckFailures >= s.threshold {
			app.Status = models.AppStatusUnhealthy
		}
	}

	changed := app.Status != previous
	snapshot := cloneApp(app)
	s.mu.Unlock()

	if changed {
		slog.Info("App status changed", "app_id", appID, "from", previous, "to", snapshot.Status)
		if s.statusChanged != nil {
			s.statusChanged(snapshot)
		}
	}
}

func (s *Service) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func cloneApp(app *models.RegisteredApp) *models.RegisteredApp {
	cp := *app
	cp.Manifest = make(map[string]any, len(app.Manifest))
	for k, v := range app.Manifest {
		cp.Manifest[k] = v
	}
	return &cp
}
