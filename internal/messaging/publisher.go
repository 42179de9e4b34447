// Package messaging delivers order status events to RabbitMQ through a
// transactional outbox.
package messaging

import (
	"context"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers an event payload to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// RabbitPublisher publishes to a durable fanout exchange.
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
}

var _ Publisher = (*RabbitPublisher)(nil)

// NewRabbitPublisher connects to the broker and declares the exchange.
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}

	return &RabbitPublisher{conn: conn, exchange: exchange}, nil
}

// Publish sends one JSON payload. A fresh channel per publish keeps the
// publisher safe for concurrent use.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
}

// Close closes the underlying connection.
func (p *RabbitPublisher) Close() error {
	return p.conn.Close()
}
