// Voice bridge - per-call STT/TTS coordinator between transports and
// agents.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxos-ai/voxos/pkg/audio"
	"github.com/voxos-ai/voxos/pkg/bridge"
	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/config"
	"github.com/voxos-ai/voxos/pkg/stt"
	"github.com/voxos-ai/voxos/pkg/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

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

	gateway := bridge.NewGatewayClient(cfg.GatewayURL, internalKey)
	voices := tts.NewVoiceResolver(cfg.GatewayURL, internalKey)
	factory := tts.NewFactory(cfg.CartesiaAPIKey, cfg.ElevenLabsAPIKey, cfg.TTSProvider, cfg.CartesiaVoiceID)

	var streaming tts.StreamingClient
	if cfg.CartesiaAPIKey != "" {
		streaming = tts.NewCartesiaStreamingClient(cfg.CartesiaAPIKey, cfg.CartesiaVoiceID, cfg.CartesiaModel)
	}

	newSTT := func(onTranscript stt.TranscriptFunc) stt.Client {
		return stt.NewAssemblyAIClient(cfg.AssemblyAIAPIKey, audio.SampleRatePCM, onTranscript)
	}

	b := bridge.NewBridge(publisher, gateway, newSTT, factory, streaming, voices)
	b.Warmup(ctx)
	defer b.Shutdown()

	go b.RunCallAudioConsumer(ctx, conn)
	go b.RunSpeakConsumer(ctx, conn)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"voicebridge"}`))
	})
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	httpServer := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	slog.Info("Voice bridge started")
	<-ctx.Done()
	slog.Info("Shutting down voice bridge")
	_ = httpServer.Close()
}
