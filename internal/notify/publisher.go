package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"
)

const ExchangeName = "marketplace.events"

// Routing keys published by this service.
const (
	RoutingNotificationCreated = "notification.created"
	RoutingEmailSend           = "email.send"
)

// Publisher publishes JSON payloads under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// MQPublisher publishes to a durable RabbitMQ topic exchange.
type MQPublisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewMQPublisher(url string) (*MQPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &MQPublisher{conn: conn, channel: ch}, nil
}

func (p *MQPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *MQPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, ExchangeName, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
	})
}

// LogPublisher logs payloads instead of publishing them. Used when no broker
// is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, routingKey string, payload any) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event", "routing_key", routingKey, "payload", payload)
	return nil
}
