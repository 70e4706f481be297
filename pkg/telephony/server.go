// Package telephony terminates carrier webhooks and media streams: the
// whitelist gate, TwiML responses, mulaw transcoding, outbound origination,
// and the TTS egress consumer.
package telephony

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxos-ai/voxos/pkg/bus"
	"github.com/voxos-ai/voxos/pkg/config"
)

var activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "voxos_telephony_active_streams",
	Help: "Number of live carrier media streams.",
})

// Adapter is the telephony service: webhook handlers, the media-stream WS,
// and the carrier TTS consumer.
type Adapter struct {
	cfg         *config.Config
	store       *Store
	publisher   *bus.Publisher
	twilio      *TwilioClient
	gateway     *gatewayClient
	internalKey string

	streams  *streamMap
	upgrader websocket.Upgrader
}

// NewAdapter wires the telephony service. internalKey must already be
// loaded; a missing key file fails startup, not requests.
func NewAdapter(cfg *config.Config, store *Store, publisher *bus.Publisher, twilio *TwilioClient, internalKey string) *Adapter {
	return &Adapter{
		cfg:         cfg,
		store:       store,
		publisher:   publisher,
		twilio:      twilio,
		gateway:     newGatewayClient(cfg.GatewayURL, internalKey),
		internalKey: internalKey,
		streams:     newStreamMap(),
		upgrader: websocket.Upgrader{
			// The carrier connects from rotating IPs; stream auth rides in
			// the start event's custom parameters.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine with every adapter route.
func (a *Adapter) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", a.healthHandler)
	if a.cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	tw := r.Group("/twilio")
	{
		tw.POST("/voice/incoming", a.handleIncomingCall)
		tw.POST("/voice/outbound", a.handleOutboundAnswer)
		tw.POST("/voice/status", a.handleCallStatus)
		tw.GET("/media-stream/:session_id", a.handleMediaStream)

		tw.POST("/sms/receive", a.handleIncomingSMS)
		tw.POST("/sms/send", a.requireInternalKey, a.handleSendSMS)

		// "outbound" and :sid share a path segment, so call control
		// dispatches on the captured value.
		tw.POST("/call/:sid", a.requireInternalKey, a.handleCallRoot) // POST /call/outbound
		tw.POST("/call/:sid/:action", a.requireInternalKey, a.handleCallAction)
		tw.GET("/call/:sid/status", a.requireInternalKey, a.handleCallInfo)
	}

	return r
}

// RunTTSConsumer starts the carrier TTS egress loop. Blocks until ctx is
// cancelled.
func (a *Adapter) RunTTSConsumer(ctx context.Context, conn *bus.Conn) {
	a.runTTSConsumer(ctx, conn)
}

// Shutdown closes every live media stream.
func (a *Adapter) Shutdown() {
	a.streams.closeAll()
}

func (a *Adapter) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"service":      "telephony",
		"active_calls": a.streams.count(),
	})
}

// requireInternalKey guards the internal control endpoints.
func (a *Adapter) requireInternalKey(c *gin.Context) {
	if c.GetHeader("X-Internal-Key") != a.internalKey {
		slog.Warn("Rejected internal request with bad key", "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid internal API key"})
		return
	}
	c.Next()
}

// verifySignature gates carrier webhooks. Skipping is a development aid
// only and is logged loudly.
func (a *Adapter) verifySignature(c *gin.Context) bool {
	if a.cfg.TwilioSkipSignatureValidation {
		slog.Warn("Carrier signature validation DISABLED - development only")
		return true
	}
	if err := c.Request.ParseForm(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed form"})
		return false
	}
	if !validateSignature(c.Request, a.cfg.TwilioAuthToken, c.Request.PostForm) {
		slog.Warn("Invalid carrier signature", "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return false
	}
	return true
}
