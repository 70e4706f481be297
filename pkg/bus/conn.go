package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Conn is a RabbitMQ connection that redials with exponential backoff
// (1 s → 60 s cap) when a channel is requested after the underlying
// connection has dropped. The mutex guards only the connection pointer:
// channel opening and redialing are not serialized, so concurrent callers
// that find the connection closed each redial. Callers own the channels
// they open.
type Conn struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
}

// Dial connects to RabbitMQ, retrying until ctx is cancelled.
func Dial(ctx context.Context, url string) (*Conn, error) {
	c := &Conn{url: url}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) connect(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 60 * time.Second
	policy.MaxElapsedTime = 0 // retry until ctx cancellation

	return backoff.Retry(func() error {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			slog.Warn("RabbitMQ dial failed, retrying", "error", err)
			return err
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		slog.Info("Connected to RabbitMQ")
		return nil
	}, backoff.WithContext(policy, ctx))
}

// Channel opens a new channel, reconnecting first if the connection has
// been closed underneath us.
func (c *Conn) Channel(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		if err := c.connect(ctx); err != nil {
			return nil, fmt.Errorf("reconnect failed: %w", err)
		}
		c.mu.Lock()
		conn = c.conn
		c.mu.Unlock()
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}
