package domain

import (
	"context"
	"time"
)

// Delivery is one dequeued message plus whatever the transport needs to settle it.
type Delivery struct {
	ID       string
	Queue    string
	Payload  []byte
	Attempts int
	// Raw carries the transport-specific handle (amqp.Delivery, *nsq.Message, ...).
	Raw any
}

type JobSource interface {
	// Dequeue retrieves the next available message.
	// Blocks until a message is available or the timeout is reached.
	// Returns nil, nil if timeout expires with no messages available.
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)
	// Progress reports how far processing of the delivery has come, in percent.
	Progress(ctx context.Context, delivery *Delivery, percent int) error
	// Ack marks the delivery complete, removing it from the queue
	Ack(ctx context.Context, delivery *Delivery) error
	// Close gracefully shuts down the queue connection
	Close() error
}

type JobPublisher interface {
	Publish(ctx context.Context, message *Message) error
}

// Sender hands a rendered mail to the transport.
type Sender interface {
	Send(ctx context.Context, envelope Envelope) error
}
