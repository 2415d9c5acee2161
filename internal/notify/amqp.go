package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/event"
)

const (
	DefaultExchange = "judgeboard.events"
	publishTimeout  = 5 * time.Second
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPForwarder forwards session events to a topic exchange, routed by "session.<event type>".
type AMQPForwarder struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	ch       amqpChannel
	exchange string
}

// DialAMQP connects to the broker and declares the topic exchange.
func DialAMQP(url, exchange string) (*AMQPForwarder, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp091.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", exchange, err)
	}

	return &AMQPForwarder{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
	}, nil
}

// Register subscribes the forwarder to every session event on the bus.
func (f *AMQPForwarder) Register(bus *event.Bus) {
	bus.SubscribeAll(domain.EventNames, func(ctx context.Context, e event.Event) error {
		se, ok := sessionEvent(e)
		if !ok {
			return nil
		}
		return f.Forward(ctx, se)
	})
}

func (f *AMQPForwarder) Forward(ctx context.Context, e domain.SessionEvent) error {
	body, err := marshalMessage(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	f.mu.Lock()
	defer f.mu.Unlock()

	err = f.ch.PublishWithContext(ctx, f.exchange, RoutingKey(e.Type), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    fmt.Sprintf("%s:%d", e.SessionID, e.Seq),
		Timestamp:    e.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp: publish %s: %w", e.Type, err)
	}

	return nil
}

// RoutingKey returns the routing key of an event type.
func RoutingKey(eventType string) string {
	return "session." + eventType
}

func (f *AMQPForwarder) Close() error {
	if err := f.ch.Close(); err != nil {
		slog.Error("amqp: close channel failed", "error", err)
	}

	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
