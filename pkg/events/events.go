package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Type string

const (
	MessageAppended          Type = "message_appended"
	ConversationRead         Type = "conversation_read"
	ConversationMarkedUnread Type = "conversation_marked_unread"
)

// Event is the JSON body published for every chat state change.
type Event struct {
	Type           Type      `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      int64     `json:"message_id,omitempty"`
	Sender         string    `json:"sender,omitempty"`
	Reader         string    `json:"reader,omitempty"`
	UnreadCount    *int      `json:"unread_count,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// AMQPPublisher writes events to a durable queue on the default exchange.
type AMQPPublisher struct {
	conn  *amqp.Connection
	queue string
	log   *zap.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// Dial connects to RabbitMQ and returns a publisher for queue.
func Dial(url, queue string, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	return NewAMQPPublisher(conn, queue, log), nil
}

func NewAMQPPublisher(conn *amqp.Connection, queue string, log *zap.Logger) *AMQPPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPPublisher{conn: conn, queue: queue, log: log}
}

// channel lazily opens one channel and reopens it after it has been closed by the broker.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	err = ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.OccurredAt,
			Type:         string(e.Type),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	p.log.Debug("event_published", zap.String("type", string(e.Type)), zap.String("conversation_id", e.ConversationID))
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	return p.conn.Close()
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
