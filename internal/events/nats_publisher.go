package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher sends encoded events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close()
}

// NATSPublisher publishes events on core NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends data on subject.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if p == nil || p.conn == nil {
		return errors.New("nil publisher")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.conn.Publish(subject, data)
}

// Close drains the underlying connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// Forwarder relays dispatched events to a Publisher as JSON on
// "<prefix>.<event type>".
type Forwarder struct {
	publisher Publisher
	prefix    string
}

// NewForwarder builds a forwarder.
func NewForwarder(publisher Publisher, prefix string) *Forwarder {
	return &Forwarder{publisher: publisher, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (f *Forwarder) Subject(t EventType) string {
	if f.prefix == "" {
		return string(t)
	}
	return f.prefix + "." + string(t)
}

// Handle implements EventHandler.
func (f *Forwarder) Handle(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return f.publisher.Publish(ctx, f.Subject(event.Type), data)
}
