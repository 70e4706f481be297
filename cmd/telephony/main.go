// Telephony adapter - carrier webhooks, media streams, and outbound
// origination.
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
	"github.com/voxos-ai/voxos/pkg/database"
	"github.com/voxos-ai/voxos/pkg/telephony"
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

	twilio := telephony.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
	store := telephony.NewStore(dbClient.DB())
	adapter := telephony.NewAdapter(cfg, store, publisher, twilio, internalKey)
	defer adapter.Shutdown()

	go adapter.RunTTSConsumer(ctx, conn)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           adapter.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Telephony adapter listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down telephony adapter")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
