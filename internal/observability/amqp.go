package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/trace"
)

const headerTraceID = "trace_id"

// EventPublisher sends lifecycle events with transport headers.
type EventPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
}

// AMQPPublisher publishes transient lifecycle events (websocket and room
// activity) to their own topic exchange, apart from the durable audit stream.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}

	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial event broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open event channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare event exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	table := make(amqp.Table, len(headers))
	for key, value := range headers {
		table[key] = value
	}

	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		Headers:      table,
	})
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

type publisherSlot struct{ EventPublisher }

var defaultPublisher atomic.Pointer[publisherSlot]

// SetPublisher installs the process-wide event publisher. nil disables events.
func SetPublisher(publisher EventPublisher) {
	if publisher == nil {
		defaultPublisher.Store(nil)
		return
	}
	defaultPublisher.Store(&publisherSlot{publisher})
}

// PublishEvent sends an event through the default publisher, counting
// failures. The active trace id is added when headers lack one.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	slot := defaultPublisher.Load()
	if slot == nil {
		return nil
	}

	if _, ok := headers[headerTraceID]; !ok {
		if traceID := TraceIDFromContext(ctx); traceID != "" {
			if headers == nil {
				headers = map[string]string{}
			}
			headers[headerTraceID] = traceID
		}
	}

	if err := slot.PublishJSON(ctx, routingKey, message, headers); err != nil {
		IncAMQPPublishError()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// TraceIDFromContext returns the active span's trace id, if any.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
