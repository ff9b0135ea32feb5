package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	appID       = "waffle-chat"
	dialTimeout = 5 * time.Second
)

// ErrClosed is returned by Publish after the broker connection dropped.
var ErrClosed = errors.New("rabbitmq connection closed")

// Publisher publishes audit and domain events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher, or a noop publisher when amqpURL
// is empty or the broker cannot be reached. Startup never fails on the broker.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		return fallback("empty amqp url")
	}

	conn, err := amqp.DialConfig(amqpURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return fallback(err.Error())
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fallback(err.Error())
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fallback(fmt.Sprintf("declare exchange %s: %v", exchange, err))
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	log.Info().Str("exchange", exchange).Msg("rabbitmq connected")
	return p
}

func fallback(reason string) noopPublisher {
	log.Warn().Str("reason", reason).Msg("rabbitmq disabled, using noop")
	return noopPublisher{reason: reason}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	closed   atomic.Bool
}

func (p *amqpPublisher) watch(closes <-chan *amqp.Error) {
	if err, ok := <-closes; ok && err != nil {
		log.Error().Str("reason", err.Reason).Int("code", err.Code).Msg("rabbitmq connection lost")
	}
	p.closed.Store(true)
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	if p.closed.Load() {
		return ErrClosed
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        appID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		log.Error().Err(err).Str("routing_key", routingKey).Msg("rabbitmq publish failed")
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	p.closed.Store(true)
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
}

// Publish logs the event it would have sent.
func (noopPublisher) Publish(_ context.Context, routingKey string, event any) error {
	entry := log.Debug().Str("routing_key", routingKey)
	if body, err := json.Marshal(event); err == nil {
		var head struct {
			EventType string `json:"event_type"`
			RequestID string `json:"request_id"`
		}
		_ = json.Unmarshal(body, &head)
		entry = entry.Str("event_type", head.EventType).Str("request_id", head.RequestID).Int("bytes", len(body))
	}
	entry.Msg("rabbitmq noop publish")
	return nil
}

func (noopPublisher) Close() error { return nil }

// PublisherMode reports "amqp", "noop" or "unknown" for startup logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher, *noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason returns why p fell back to noop, if it did.
func PublisherNoopReason(p Publisher) string {
	switch n := p.(type) {
	case noopPublisher:
		return n.reason
	case *noopPublisher:
		return n.reason
	}
	return ""
}
