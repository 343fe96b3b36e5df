package amqpmail

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/mail"
	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	durable    bool
	published  []published
	publishErr error
	declareErr error
	closed     bool
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return amqp.Queue{}, c.declareErr
	}
	c.declared = append(c.declared, name)
	c.durable = durable
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func TestNewPublisherDeclaresDurableQueue(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if p.Queue() != DefaultQueue {
		t.Fatalf("unexpected queue %q", p.Queue())
	}
	if len(ch.declared) != 1 || ch.declared[0] != DefaultQueue || !ch.durable {
		t.Fatalf("queue not declared durable: %+v", ch)
	}
}

func TestNewPublisherDeclareFailure(t *testing.T) {
	_, err := NewPublisher(&fakeChannel{declareErr: errors.New("denied")}, "q")
	if err == nil {
		t.Fatal("expected declare error")
	}
}

func TestDeliverPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "mail.out")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	fixed := time.Unix(1_700_000_000, 0).UTC()
	p.now = func() time.Time { return fixed }

	id, err := p.Deliver(context.Background(), mail.Message{
		To:   "a@example.com",
		Kind: mail.KindEmailVerification,
		Data: map[string]string{mail.DataToken: "tok"},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(ch.published))
	}
	pub := ch.published[0]
	if pub.exchange != "" || pub.key != "mail.out" {
		t.Fatalf("unexpected routing %q/%q", pub.exchange, pub.key)
	}
	if pub.msg.DeliveryMode != amqp.Persistent || pub.msg.ContentType != "application/json" {
		t.Fatalf("unexpected publishing %+v", pub.msg)
	}
	if pub.msg.MessageId != id || pub.msg.Type != string(mail.KindEmailVerification) {
		t.Fatalf("unexpected id/type %q %q", pub.msg.MessageId, pub.msg.Type)
	}

	var env Envelope
	if err := json.Unmarshal(pub.msg.Body, &env); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if env.To != "a@example.com" || env.Data[mail.DataToken] != "tok" || !env.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestDeliverErrors(t *testing.T) {
	ch := &fakeChannel{}
	p, _ := NewPublisher(ch, "q")

	if _, err := p.Deliver(context.Background(), mail.Message{Kind: mail.KindPasswordReset}); !errors.Is(err, mail.ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}

	boom := errors.New("broker gone")
	ch.publishErr = boom
	if _, err := p.Deliver(context.Background(), mail.Message{To: "a@example.com"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}

	ch.publishErr = nil
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ch.closed {
		t.Fatal("channel not closed")
	}
	if _, err := p.Deliver(context.Background(), mail.Message{To: "a@example.com"}); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
