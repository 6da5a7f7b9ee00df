package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// ErrUnknownKind is returned by Dispatch for command names outside the closed
// event set.
var ErrUnknownKind = errors.New("unknown event kind")

// Publisher emits events to a fanout exchange. Every consumer binds its own
// queue, so the analytics mirror and the resolver cache each see every event.
type Publisher struct {
	ch       *amqp091.Channel
	exchange string
}

// NewPublisher declares the exchange and returns a publisher bound to it.
func NewPublisher(ch *amqp091.Channel, exchange string) (*Publisher, error) {
	err := ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	return &Publisher{ch: ch, exchange: exchange}, nil
}

func (p *Publisher) Emit(ctx context.Context, kind Kind, payload any) error {
	body, err := Encode(kind, payload)
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(
		ctx,
		p.exchange, "", false, false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}
