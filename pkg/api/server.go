// Package api is the gateway's HTTP and WebSocket edge: conversation and
// voice streams, call-manager endpoints, notification publishing, and
// signed audio serving.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxos-ai/voxos/pkg/auth"
	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/callmgr"
	"github.com/voxos-ai/voxos/pkg/config"
	"github.com/voxos-ai/voxos/pkg/database"
	"github.com/voxos-ai/voxos/pkg/notify"
	"github.com/voxos-ai/voxos/pkg/version"
)

// Server is the gateway HTTP/WS server.
type Server struct {
	cfg         *config.Config
	dbClient    *database.Client
	callManager *callmgr.Manager
	registry    *notify.Registry
	pending     *notify.PendingStore
	publisher   *bus.Publisher
	ui          *notify.Publisher
	messages    *MessageStore
	tokens      *auth.TokenIssuer
	signer      *auth.URLSigner
	internalKey string

	upgrader websocket.Upgrader

	// Voice WebSockets by session, for TTS binary egress. Distinct from the
	// notification registry: exactly one voice socket per session.
	voiceMu      sync.Mutex
	voiceSockets map[string]*notify.Socket

	httpServer *http.Server
}

// NewServer wires the gateway surface.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	callManager *callmgr.Manager,
	registry *notify.Registry,
	pending *notify.PendingStore,
	publisher *bus.Publisher,
	ui *notify.Publisher,
	tokens *auth.TokenIssuer,
	signer *auth.URLSigner,
	internalKey string,
) *Server {
	return &Server{
		cfg:         cfg,
		dbClient:    dbClient,
		callManager: callManager,
		registry:    registry,
		pending:     pending,
		publisher:   publisher,
		ui:          ui,
		messages:    NewMessageStore(dbClient.DB()),
		tokens:      tokens,
		signer:      signer,
		internalKey: internalKey,
		upgrader: websocket.Upgrader{
			// Tokens authenticate WS clients; origins are not restricted.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		voiceSockets: make(map[string]*notify.Socket),
	}
}

// Router builds the gin engine with every gateway route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	r.GET("/health", s.healthHandler)
	if s.cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/conversations/:session_id", s.getConversationHandler)
		v1.POST("/messages/user", s.requireInternalKey, s.agentMessageHandler)
		v1.POST("/messages/from-user", s.requireInternalKey, s.userMessageHandler)

		// The router's tree cannot mix the static "internal"/"active"
		// segments with the :call_id parameter, so the calls subtree
		// dispatches on the captured segment instead.
		calls := v1.Group("/calls")
		{
			calls.POST("/:call_id", s.callRootDispatch) // POST /calls/initiate
			calls.POST("/:call_id/:action", s.callActionDispatch)
			calls.GET("/:call_id/:sub", s.callGetDispatch)
		}

		v1.POST("/twilio/call/register-inbound", s.requireInternalKey, s.registerInboundCallHandler)

		v1.POST("/notifications/action-status", s.requireInternalKey, s.actionStatusHandler)
		v1.POST("/notifications/app-interaction", s.requireInternalKey, s.appInteractionHandler)
		v1.GET("/notifications/pending-count/:session_id", s.pendingCountHandler)
	}

	r.POST("/voice/token", s.voiceTokenHandler)
	r.GET("/audio/signed/:signature", s.signedAudioHandler)

	r.GET("/ws/conversations/:session_id/stream", s.conversationWSHandler)
	r.GET("/ws/voice/:session_id", s.voiceWSHandler)

	return r
}

// Start runs the HTTP server until it fails or Stop is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Gateway listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.dbClient.DB())
	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":   dbHealth.Status,
		"service":  "gateway",
		"version":  version.Full(),
		"database": dbHealth,
		"sessions": s.registry.SessionCount(),
	})
}
