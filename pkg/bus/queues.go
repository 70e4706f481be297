// Package bus provides the RabbitMQ transport shared by all voxos services:
// a reconnecting connection, an envelope publisher, and a consumer loop with
// manual acknowledgement.
package bus

// Exchange and queue inventory. The frontend exchange is fanout so that
// every gateway instance sees every notification; the per-agent and
// pipeline queues are point-to-point (each message consumed once).
const (
	FrontendNotificationsExchange = "frontend_notifications"

	CallAudioQueue    = "call_audio_queue"
	VoiceGatewayQueue = "voice_gateway_queue"
	TwilioTTSQueue    = "twilio_tts_queue"

	PrimaryAgentID = "primary_agent"
)

// AgentQueue returns the durable queue name for direct notifications to an
// agent.
func AgentQueue(agentID string) string {
	return agentID + "_queue"
}
