// Package notify publishes inventory events to RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/models"
)

// LogCreatedType is the message type of log-created events.
const LogCreatedType = "log.created"

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends a message for every booked log entry to a durable queue
// on the default exchange.
type Publisher struct {
	conn  *amqp.Connection
	ch    channel
	queue string
	log   *zap.Logger
}

// Dial connects to the broker at url and declares queue.
func Dial(url, queue string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", queue, err)
	}
	log.Info("log notifications enabled", zap.String("queue", queue))
	return &Publisher{conn: conn, ch: ch, queue: queue, log: log}, nil
}

// LogCreated publishes rec as JSON. The submission id, when present, is
// used as the message id so consumers can drop redeliveries.
func (p *Publisher) LogCreated(ctx context.Context, rec models.LogRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode log %d: %w", rec.ID, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    rec.SubmissionID,
		Type:         LogCreatedType,
		Timestamp:    time.Now(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish log %d: %w", rec.ID, err)
	}
	p.log.Debug("log notification published", zap.Int("log_id", rec.ID), zap.String("queue", p.queue))
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
