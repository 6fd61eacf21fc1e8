// Package publisher announces viral videos on a RabbitMQ topic exchange.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ad-tracker/viral-video-detector/internal/config"
	"github.com/ad-tracker/viral-video-detector/internal/metrics"
	"github.com/ad-tracker/viral-video-detector/internal/models"
)

// EventType tags every message published by this package.
const EventType = "video.viral"

const confirmTimeout = 5 * time.Second

// ViralEvent is the message body.
type ViralEvent struct {
	EventID    string        `json:"event_id"`
	EventType  string        `json:"event_type"`
	RunID      string        `json:"run_id,omitempty"`
	DetectedAt time.Time     `json:"detected_at"`
	Video      *models.Video `json:"video"`
}

// NewViralEvent wraps a video in an event envelope with a fresh id.
func NewViralEvent(v *models.Video) *ViralEvent {
	return &ViralEvent{
		EventID:    uuid.New().String(),
		EventType:  EventType,
		RunID:      v.RunID,
		DetectedAt: time.Now().UTC(),
		Video:      v,
	}
}

// RabbitPublisher publishes viral events with publisher confirms.
type RabbitPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewRabbitPublisher connects, declares the topology and enables confirms.
func NewRabbitPublisher(cfg *config.RabbitMQConfig, logger *zap.Logger) (*RabbitPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &RabbitPublisher{
		config: cfg,
		logger: logger,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *RabbitPublisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		p.config.User, p.config.Password, p.config.Host, p.config.Port)

	conn, err := amqp.Dial(connURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	closeAll := func() {
		_ = ch.Close()
		_ = conn.Close()
	}

	if err := ch.Confirm(false); err != nil {
		closeAll()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	); err != nil {
		closeAll()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		p.config.Queue, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		amqp.Table{
			"x-message-ttl": int32(7 * 24 * time.Hour / time.Millisecond), // one week
			"x-max-length":  int32(100000),
		},
	); err != nil {
		closeAll()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(
		p.config.Queue,      // queue name
		p.config.RoutingKey, // routing key
		p.config.Exchange,   // exchange
		false,
		nil,
	); err != nil {
		closeAll()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	p.conn = conn
	p.channel = ch

	p.logger.Info("Connected to RabbitMQ",
		zap.String("exchange", p.config.Exchange),
		zap.String("queue", p.config.Queue),
	)

	return nil
}

// PublishViral publishes one viral video and waits for the broker to confirm
// it.
func (p *RabbitPublisher) PublishViral(ctx context.Context, video *models.Video) error {
	if video == nil {
		return errors.New("nil video")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.channel == nil {
		return errors.New("channel is not initialized")
	}

	event := NewViralEvent(video)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		p.config.Exchange,   // exchange
		p.config.RoutingKey, // routing key
		true,                // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.DetectedAt,
			MessageId:    event.EventID,
			Type:         EventType,
		},
	)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish message: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("waiting for publish confirmation: %w", err)
	}
	if !acked {
		metrics.EventsPublished.WithLabelValues("nacked").Inc()
		return errors.New("message was not acknowledged by broker")
	}

	metrics.EventsPublished.WithLabelValues("ok").Inc()
	p.logger.Debug("Published viral event",
		zap.String("event_id", event.EventID),
		zap.String("video_id", video.VideoID),
		zap.String("routing_key", p.config.RoutingKey),
	)

	return nil
}

// Close closes the channel and connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		p.conn = nil
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("errors closing publisher: %w", err)
	}

	p.logger.Info("RabbitMQ publisher closed")
	return nil
}

// IsHealthy reports whether the connection and channel are open.
func (p *RabbitPublisher) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.conn != nil && !p.conn.IsClosed() && p.channel != nil
}
