// Gateway server - HTTP/WebSocket edge, call state machine, and
// notification fabric.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxos-ai/voxos/pkg/api"
	"github.com/voxos-ai/voxos/pkg/auth"
	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/callmgr"
	"github.com/voxos-ai/voxos/pkg/cleanup"
	"github.com/voxos-ai/voxos/pkg/config"
	"github.com/voxos-ai/voxos/pkg/database"
	"github.com/voxos-ai/voxos/pkg/notify"
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

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		slog.Error("JWT secret missing", "error", err)
		os.Exit(1)
	}
	signer, err := auth.NewURLSigner(cfg.JWTSecret)
	if err != nil {
		slog.Error("URL signer init failed", "error", err)
		os.Exit(1)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Invalid database configuration", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		slog.Error("Database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	conn, err := bus.Dial(ctx, cfg.RabbitMQURL)
	if err != nil {
		slog.Error("Broker connection failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	publisher := bus.NewPublisher(conn)
	defer publisher.Close()
	uiPublisher := notify.NewPublisher(publisher)

	registry := notify.NewRegistry()
	pending := notify.NewPendingStore(dbClient.DB())

	carrier := callmgr.NewHTTPCarrierControl(cfg.TelephonyURL, internalKey)
	callStore := callmgr.NewStore(dbClient.DB())
	callManager := callmgr.NewManager(callStore, publisher, carrier)

	if err := callManager.Restore(ctx); err != nil {
		slog.Error("Failed to restore active calls", "error", err)
	}
	callManager.StartTimeoutMonitor(ctx)
	defer callManager.StopTimeoutMonitor()

	consumer := notify.NewConsumer(conn, registry, pending)
	go consumer.Run(ctx)

	cleanupInterval, err := time.ParseDuration(cfg.CleanupInterval)
	if err != nil {
		cleanupInterval = time.Hour
	}
	sweeper := cleanup.NewService(pending,
		time.Duration(cfg.PendingNotificationTTLDays)*24*time.Hour, cleanupInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	server := api.NewServer(cfg, dbClient, callManager, registry, pending,
		publisher, uiPublisher, tokens, signer, internalKey)

	go func() {
		if err := server.Start(":" + cfg.HTTPPort); err != nil {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
}
