package events

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/whatsdesk/whatsdesk/internal/config"
)

// ExternalPublisher mirrors domain events to an out-of-process consumer.
type ExternalPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type amqpPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

// NewAMQPPublisher dials RabbitMQ with exponential backoff and declares a
// topic exchange; routing key is the event type. Returns a no-op publisher
// when no URL is configured so callers never branch on availability.
func NewAMQPPublisher(ctx context.Context, cfg config.AMQPConfig, logger *zap.Logger) (ExternalPublisher, error) {
	if cfg.URL == "" {
		logger.Info("AMQP_URL not set; external event mirror disabled")
		return &noopPublisher{}, nil
	}

	conn, err := dialWithRetry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("amqp event mirror enabled", zap.String("exchange", cfg.Exchange))
	return &amqpPublisher{conn: conn, channel: ch, exchange: cfg.Exchange, logger: logger}, nil
}

func dialWithRetry(ctx context.Context, cfg config.AMQPConfig, logger *zap.Logger) (*amqp091.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.RetryAttempts; attempt++ {
		conn, err := amqp091.Dial(cfg.URL)
		if err == nil {
			if attempt > 1 {
				logger.Info("rabbit connected", zap.Int("attempt", attempt))
			}
			return conn, nil
		}
		lastErr = err

		sleep := cfg.RetryDelay() * time.Duration(math.Pow(2, float64(attempt-1)))
		if sleep > time.Minute {
			sleep = time.Minute
		}
		logger.Warn("rabbit dial failed",
			zap.Int("attempt", attempt),
			zap.Duration("sleep", sleep),
			zap.Error(err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (p *amqpPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, string(event.Type), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
}

func (p *amqpPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct{}

func (*noopPublisher) Publish(context.Context, Event) error { return nil }
func (*noopPublisher) Close() error                         { return nil }
