// Package notify dispatches wallet events to RabbitMQ for downstream
// notification delivery.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher is implemented by types that can publish wallet events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// EventProducer publishes to a durable topic exchange.
type EventProducer struct {
	exchange string

	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	declared bool
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is not configured or unreachable at startup.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(_ context.Context, e Event) error {
	zap.L().Debug("publish skipped", zap.String("component", "notify"), zap.String("event", e.Type), zap.String("reference", e.Reference))
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ with a bounded timeout.
func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{exchange: exchange, conn: conn, channel: ch}, nil
}

// Publish sends e with its type as the routing key. A failed channel is
// reopened once before giving up.
func (p *EventProducer) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publishLocked(ctx, e.Type, body)
	if err == nil {
		return nil
	}
	zap.L().Warn("publish failed; reopening channel", zap.String("exchange", p.exchange), zap.String("routing_key", e.Type), zap.Error(err))

	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	p.declared = false
	return p.publishLocked(ctx, e.Type, body)
}

func (p *EventProducer) publishLocked(ctx context.Context, routingKey string, body []byte) error {
	if !p.declared {
		if err := p.channel.ExchangeDeclare(
			p.exchange, // name
			"topic",    // type
			true,       // durable
			false,      // autoDelete
			false,      // internal
			false,      // noWait
			nil,        // args
		); err != nil {
			return err
		}
		p.declared = true
	}

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
