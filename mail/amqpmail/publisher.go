// Package amqpmail publishes mail requests to a durable RabbitMQ queue. A
// separate worker consumes the queue, renders the template and sends it.
package amqpmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/mail"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is used when no queue name is configured.
const DefaultQueue = "identity.mail"

// ErrPublisherClosed is returned by Deliver after Close.
var ErrPublisherClosed = errors.New("amqpmail: publisher closed")

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	ID        string            `json:"id"`
	Kind      mail.Kind         `json:"kind"`
	To        string            `json:"to"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Publisher implements mail.Deliverer.
type Publisher struct {
	mu     sync.Mutex
	ch     Channel
	conn   *amqp.Connection
	queue  string
	closed bool
	now    func() time.Time
}

// Dial connects to url and declares queue. The publisher owns the
// connection and closes it in Close.
func Dial(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open: %w", err)
	}
	p, err := NewPublisher(ch, queue)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares queue (durable) on ch. An empty queue selects
// DefaultQueue.
func NewPublisher(ch Channel, queue string) (*Publisher, error) {
	if ch == nil {
		return nil, errors.New("amqpmail: nil channel")
	}
	if queue == "" {
		queue = DefaultQueue
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("rabbitmq: queue declare: %w", err)
	}
	return &Publisher{ch: ch, queue: queue, now: time.Now}, nil
}

// Queue returns the routing key messages are published with.
func (p *Publisher) Queue() string {
	return p.queue
}

func (p *Publisher) Deliver(ctx context.Context, msg mail.Message) (string, error) {
	if msg.To == "" {
		return "", mail.ErrNoRecipient
	}
	env := Envelope{
		ID:        internal.NewID(),
		Kind:      msg.Kind,
		To:        msg.To,
		Data:      msg.Data,
		CreatedAt: p.now().UTC(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Type:         string(env.Kind),
		Timestamp:    env.CreatedAt,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrPublisherClosed
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return "", fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return env.ID, nil
}

// Close closes the channel and, for Dial publishers, the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
