package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends persistent JSON messages to queues and exchanges. It keeps
// one channel open and replaces it on error; declarations are idempotent so
// publishing to a queue no other service has declared yet is safe.
type Publisher struct {
	conn *Conn

	mu sync.Mutex
	ch *amqp.Channel

	declaredQueues    map[string]bool
	declaredExchanges map[string]bool
}

// NewPublisher creates a publisher on an established connection.
func NewPublisher(conn *Conn) *Publisher {
	return &Publisher{
		conn:              conn,
		declaredQueues:    make(map[string]bool),
		declaredExchanges: make(map[string]bool),
	}
}

func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return nil, err
	}
	p.ch = ch
	// Channel replaced: prior declarations died with it.
	p.declaredQueues = make(map[string]bool)
	p.declaredExchanges = make(map[string]bool)
	return ch, nil
}

// PublishToQueue marshals v and publishes it to a durable queue via the
// default exchange with persistent delivery.
func (p *Publisher) PublishToQueue(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", queue, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	if !p.declaredQueues[queue] {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.ch = nil
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
		p.declaredQueues[queue] = true
	}

	if err := ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		p.ch = nil
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}

	slog.Debug("Published message", "queue", queue, "bytes", len(body))
	return nil
}

// PublishToFanout marshals v and publishes it to a durable fanout exchange
// with persistent delivery.
func (p *Publisher) PublishToFanout(ctx context.Context, exchange string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", exchange, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	if !p.declaredExchanges[exchange] {
		if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
			p.ch = nil
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
		p.declaredExchanges[exchange] = true
	}

	if err := ch.PublishWithContext(ctx, exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		p.ch = nil
		return fmt.Errorf("failed to publish to %s: %w", exchange, err)
	}

	slog.Debug("Published message", "exchange", exchange, "bytes", len(body))
	return nil
}

// PublishEnvelopeToAgent wraps a payload in the standard envelope and sends
// it to the agent's direct queue.
func (p *Publisher) PublishEnvelopeToAgent(ctx context.Context, agentID, notificationType, source string, payload any) error {
	env, err := NewEnvelope(notificationType, source, agentID, payload)
	if err != nil {
		return fmt.Errorf("failed to build envelope: %w", err)
	}
	return p.PublishToQueue(ctx, AgentQueue(agentID), env)
}

// Close closes the publisher's channel (the connection is shared).
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		_ = p.ch.Close()
	}
}
