package bus

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery. Returning nil acks the message; returning
// an error nacks it. A first delivery is requeued so another consumer (or
// this one after reconnect) retries; a redelivered message that fails again
// is dropped.
type Handler func(ctx context.Context, d amqp.Delivery) error

// ConsumeQueue consumes a durable queue until ctx is cancelled, redeclaring
// the queue and reconnecting with exponential backoff (1 s → 60 s) whenever
// the channel drops. Prefetch is 1 so a slow handler doesn't hoard
// messages.
func (c *Conn) ConsumeQueue(ctx context.Context, queue, consumerTag string, handler Handler) {
	delay := time.Second
	const maxDelay = 60 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.consumeOnce(ctx, queue, consumerTag, handler, false)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Error("Consumer loop error, reconnecting", "queue", queue, "error", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDelay)
	}
}

// ConsumeFanout binds an exclusive, auto-delete, server-named queue to a
// durable fanout exchange and consumes it until ctx is cancelled. Every
// consumer process sees every message published to the exchange.
func (c *Conn) ConsumeFanout(ctx context.Context, exchange, consumerTag string, handler Handler) {
	delay := time.Second
	const maxDelay = 60 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.consumeFanoutOnce(ctx, exchange, consumerTag, handler)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Error("Fanout consumer error, reconnecting", "exchange", exchange, "error", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDelay)
	}
}

func (c *Conn) consumeOnce(ctx context.Context, queue, consumerTag string, handler Handler, exclusive bool) error {
	ch, err := c.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return err
	}
	return c.runDeliveries(ctx, ch, queue, consumerTag, handler)
}

func (c *Conn) consumeFanoutOnce(ctx context.Context, exchange, consumerTag string, handler Handler) error {
	ch, err := c.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	// Server-named queue, exclusive and auto-delete: it dies with this
	// consumer, so offline instances never accumulate a backlog here.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return err
	}
	slog.Info("Bound to fanout exchange", "exchange", exchange, "queue", q.Name)

	return c.runDeliveries(ctx, ch, q.Name, consumerTag, handler)
}

func (c *Conn) runDeliveries(ctx context.Context, ch *amqp.Channel, queue, consumerTag string, handler Handler) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil // channel closed by broker; caller reconnects
			}
			if err := handler(ctx, d); err != nil {
				slog.Error("Message handler failed", "queue", queue, "error", err)
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
