package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/mgoulart/shortlinks/internal/logger"
	"github.com/mgoulart/shortlinks/internal/metrics"
)

// Consumer binds a durable queue to the event exchange and feeds deliveries
// to the handler.
type Consumer struct {
	ch       *amqp091.Channel
	exchange string
	queue    string
	prefetch int
	handler  Handler
}

func NewConsumer(ch *amqp091.Channel, exchange, queue string, prefetch int, handler Handler) *Consumer {
	return &Consumer{ch: ch, exchange: exchange, queue: queue, prefetch: prefetch, handler: handler}
}

// Run consumes until ctx is cancelled or the channel closes. Undecodable
// messages are rejected without requeue; handler failures are requeued for
// another attempt.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.ExchangeDeclare(c.exchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", c.exchange, err)
	}
	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", c.queue, err)
	}
	if err := c.ch.QueueBind(c.queue, "", c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", c.queue, err)
	}
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	logger.Default().Info("event consumer started", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				logger.Default().Warn("event channel closed")
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp091.Delivery) {
	cmd := commandName(d.Body)

	if err := Dispatch(ctx, d.Body, c.handler); err != nil {
		if isDropError(err) {
			logger.Default().Error("dropping undecodable event", "cmd", cmd, "err", err)
			metrics.EventsConsumed.WithLabelValues(cmd, "dropped").Inc()
			_ = d.Reject(false)
			return
		}
		logger.Default().Error("event handling failed, requeueing", "cmd", cmd, "err", err)
		metrics.EventsConsumed.WithLabelValues(cmd, "requeued").Inc()
		_ = d.Nack(false, true)
		return
	}

	metrics.EventsConsumed.WithLabelValues(cmd, "ok").Inc()
	_ = d.Ack(false)
}

// isDropError reports whether the dispatch error means the message can never
// be processed, so requeueing it would loop forever.
func isDropError(err error) bool {
	if errors.Is(err, ErrUnknownKind) {
		return true
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func commandName(body []byte) string {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Cmd == "" {
		return "unknown"
	}
	return env.Cmd
}
