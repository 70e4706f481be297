// App registry - tracks deployed app backends and proxies state/actions.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/config"
	"github.com/voxos-ai/voxos/pkg/models"
	"github.com/voxos-ai/voxos/pkg/notify"
	"github.com/voxos-ai/voxos/pkg/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	internalKey, err := cfg.InternalAPIKey()
	if err != nil {
		slog.Error("Internal API key unavailable", "error", err)
		os.Exit(1)
	}

	conn, err := bus.Dial(ctx, cfg.RabbitMQURL)
	if err != nil {
		slog.Error("Broker connection failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	publisher := bus.NewPublisher(conn)
	defer publisher.Close()
	ui := notify.NewPublisher(publisher)

	service := registry.NewService(
		time.Duration(cfg.HealthCheckIntervalSeconds)*time.Second, cfg.UnhealthyThreshold)
	service.OnStatusChange(func(app *models.RegisteredApp) {
		err := ui.PublishAppInteraction(ctx, "", models.AppInteractionPayload{
			AgentID: "app_registry",
			AppName: app.AppID,
			Action:  "status_changed",
			Result: map[string]any{
				"app_id": app.AppID,
				"status": string(app.Status),
			},
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			slog.Error("Failed to publish app status change", "app_id", app.AppID, "error", err)
		}
	})

	service.StartHealthChecker(ctx)
	defer service.StopHealthChecker()

	server := registry.NewServer(service, internalKey)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("App registry listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down app registry")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
