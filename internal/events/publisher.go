package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Event is a booking lifecycle notification for downstream consumers
// (reminders, admin dashboard, audit).
type Event struct {
	ID            uuid.UUID      `json:"id"`
	Type          string         `json:"type"`
	AppointmentID uuid.UUID      `json:"appointment_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Publisher delivers events outside the service. Delivery is best effort;
// the event_logs table remains the record of truth.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// RoutingKey maps APPOINTMENT_CREATED to appointment.created and
// APPOINTMENT_NO_SHOW to appointment.no_show.
func RoutingKey(eventType string) string {
	key := strings.ToLower(eventType)
	if rest, ok := strings.CutPrefix(key, "appointment_"); ok {
		return "appointment." + rest
	}
	return key
}

// Encode renders ev as the AMQP message body.
func Encode(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.Type, err)
	}
	return body, nil
}

// AMQPPublisher publishes persistent JSON messages to a durable topic exchange
// and waits for the broker confirm.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	confirms chan amqp.Confirmation
	log      *zap.Logger
	mu       sync.Mutex
}

func NewAMQPPublisher(url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 16)),
		log:      log,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	seq := p.ch.GetNextPublishSeqNo()

	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(ev.Type),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID.String(),
			Timestamp:    ev.OccurredAt,
			Type:         ev.Type,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	for {
		select {
		case confirm, ok := <-p.confirms:
			if !ok {
				return fmt.Errorf("publish %s: confirm channel closed", ev.Type)
			}
			if confirm.DeliveryTag < seq {
				// late confirm of an earlier publish that timed out
				continue
			}
			if !confirm.Ack {
				return fmt.Errorf("publish %s: broker nacked delivery %d", ev.Type, confirm.DeliveryTag)
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", ev.Type, ctx.Err())
		}
	}
}

// Healthy reports whether the broker connection is still open.
func (p *AMQPPublisher) Healthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.log.Warn("closing amqp channel", zap.Error(err))
	}
	return p.conn.Close()
}
