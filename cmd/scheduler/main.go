// Scheduler - polls trigger rows and emits due reminders.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/config"
	"github.com/voxos-ai/voxos/pkg/database"
	"github.com/voxos-ai/voxos/pkg/notify"
	"github.com/voxos-ai/voxos/pkg/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	ui := notify.NewPublisher(publisher)

	service := scheduler.NewService(scheduler.NewStore(dbClient.DB()), publisher, ui)
	service.Start(ctx)
	defer service.Stop()

	slog.Info("Scheduler service started")
	<-ctx.Done()
	slog.Info("Shutting down scheduler")
}
