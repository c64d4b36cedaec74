package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "expensetracker/internal/log"
)

const (
	publishAttempts = 3
	publishTimeout  = 5 * time.Second
)

// Client talks to RabbitMQ. It owns a durable direct exchange and queue for
// transaction sync messages, and a fanout exchange for ledger-changed events.
// The connection is dialled lazily and re-dialled after connection errors.
type Client struct {
	url            string
	exchangeName   string
	queueName      string
	eventsExchange string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	breaker *breaker
}

// NewClient dials url and declares the topology. eventsExchange may be empty
// when the process does not take part in change fanout.
func NewClient(url, exchangeName, queueName, eventsExchange string) (*Client, error) {
	c := &Client{
		url:            url,
		exchangeName:   exchangeName,
		queueName:      queueName,
		eventsExchange: eventsExchange,
		breaker:        newBreaker(),
	}
	if _, err := c.publishChannel(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connection() (*amqp091.Connection, error) {
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	c.conn = conn
	c.channel = nil
	return conn, nil
}

// publishChannel returns the shared publishing channel, reconnecting if needed.
func (c *Client) publishChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := c.setup(ch); err != nil {
		ch.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	c.channel = ch
	return ch, nil
}

// consumerChannel opens a channel of its own for one consumer session.
func (c *Client) consumerChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := c.setup(ch); err != nil {
		ch.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return ch, nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name on the direct exchange
	if err := ch.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	if c.eventsExchange != "" {
		if err := ch.ExchangeDeclare(c.eventsExchange, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare events exchange: %w", err)
		}
	}
	return nil
}

// resetConnection drops the cached channel and connection after a
// connection-level failure so the next call re-dials.
func (c *Client) resetConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// PublishTransactionSync queues a mirror request for the worker.
func (c *Client) PublishTransactionSync(ctx context.Context, id, ownerID string) error {
	body, err := NewTransactionSyncMessage(id, ownerID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.exchangeName, c.queueName, body, amqp091.Persistent); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published transaction sync message",
		applog.FieldComponent, applog.ComponentAMQP,
		applog.FieldTxID, id,
		applog.FieldOwnerID, ownerID,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// PublishLedgerChanged broadcasts msg on the events exchange.
func (c *Client) PublishLedgerChanged(ctx context.Context, msg *LedgerChangedMessage) error {
	if c.eventsExchange == "" {
		return errors.New("no events exchange configured")
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, c.eventsExchange, "", body, amqp091.Transient)
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, mode uint8) error {
	if !c.breaker.allow() {
		return fmt.Errorf("publish to %s: %w", exchange, ErrCircuitOpen)
	}

	var lastErr error
	for attempt := range publishAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		lastErr = c.publishOnce(ctx, exchange, key, body, mode)
		if lastErr == nil {
			c.breaker.success()
			return nil
		}

		if state := c.breaker.failure(); state == StateOpen {
			slog.ErrorContext(ctx, "AMQP circuit breaker opened",
				applog.FieldComponent, applog.ComponentAMQP,
				applog.FieldError, lastErr,
				"exchange", exchange,
				"retry_after", openTimeout)
			c.resetConnection()
			break
		}
		if !isConnectionError(lastErr) {
			break
		}
		c.resetConnection()
		slog.WarnContext(ctx, "AMQP publish failed, retrying",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldError, lastErr,
			"exchange", exchange,
			"attempt", attempt+1)
	}
	return fmt.Errorf("publish to %s: %w", exchange, lastErr)
}

func (c *Client) publishOnce(ctx context.Context, exchange, key string, body []byte, mode uint8) error {
	ch, err := c.publishChannel()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: mode,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ConsumeTransactionSync delivers sync messages to handler until ctx ends or
// the channel drops. A handler error requeues the message; malformed
// messages are dropped.
func (c *Client) ConsumeTransactionSync(ctx context.Context, handler func(context.Context, *TransactionSyncMessage) error) error {
	ch, err := c.consumerChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming transaction sync messages",
		applog.FieldComponent, applog.ComponentAMQP,
		"queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}

			msg, err := TransactionSyncMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message",
					applog.FieldComponent, applog.ComponentAMQP,
					applog.FieldError, err)
				_ = delivery.Nack(false, false)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle sync message",
					applog.FieldComponent, applog.ComponentAMQP,
					applog.FieldError, err,
					applog.FieldTxID, msg.ID)
				_ = delivery.Nack(false, true)
				continue
			}

			_ = delivery.Ack(false)
		}
	}
}

// ConsumeLedgerChanged binds an exclusive, auto-deleted queue to the events
// exchange and passes every event to handler.
func (c *Client) ConsumeLedgerChanged(ctx context.Context, handler func(context.Context, *LedgerChangedMessage)) error {
	if c.eventsExchange == "" {
		return errors.New("no events exchange configured")
	}
	ch, err := c.consumerChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare events queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", c.eventsExchange, false, nil); err != nil {
		return fmt.Errorf("bind events queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("events channel closed")
			}
			msg, err := LedgerChangedMessageFromJSON(delivery.Body)
			if err != nil {
				slog.WarnContext(ctx, "Dropping malformed ledger event",
					applog.FieldComponent, applog.ComponentAMQP,
					applog.FieldError, err)
				continue
			}
			handler(ctx, msg)
		}
	}
}

// KeepConsuming reruns consume until ctx ends, backing off between sessions.
func (c *Client) KeepConsuming(ctx context.Context, name string, consume func(context.Context) error) error {
	for attempt := 0; ; {
		err := consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isConnectionError(err) {
			c.resetConnection()
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP consumer stopped, restarting",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldError, err,
			"consumer", name,
			"backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if attempt < 10 {
			attempt++
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
