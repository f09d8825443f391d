package events

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers one outbox event.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

// AMQPPublisher publishes events to a durable topic exchange.
type AMQPPublisher struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	p.conn = conn
	if err := p.openChannel(); err != nil {
		conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// openChannel opens a channel on the current connection and declares the
// exchange on it.
func (p *AMQPPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	p.channel = ch
	return nil
}

// ensure reconnects when the connection is gone and reopens the channel
// when only the channel was closed by the broker.
func (p *AMQPPublisher) ensure() error {
	if p.conn == nil || p.conn.IsClosed() {
		return p.connect()
	}
	if p.channel == nil || p.channel.IsClosed() {
		return p.openChannel()
	}
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensure(); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	)
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
