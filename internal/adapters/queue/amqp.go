package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/streadway/amqp"

	"mailer/internal/domain"
)

const defaultPrefetch = 50

// AMQPJobSource consumes a durable RabbitMQ queue with manual acks.
type AMQPJobSource struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

func NewAMQPJobSource(url, queue string, prefetch int) (*AMQPJobSource, error) {
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue setup failed: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPJobSource{conn: conn, ch: ch, queue: queue, deliveries: deliveries}, nil
}

func (a *AMQPJobSource) Publish(ctx context.Context, message *domain.Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return a.ch.Publish("", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (a *AMQPJobSource) Dequeue(ctx context.Context, timeout time.Duration) (*domain.Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case msg, ok := <-a.deliveries:
		if !ok {
			return nil, fmt.Errorf("rabbitmq delivery channel closed")
		}
		return &domain.Delivery{
			ID:       strconv.FormatUint(msg.DeliveryTag, 10),
			Queue:    a.queue,
			Payload:  msg.Body,
			Attempts: deliveryAttempts(&msg) + 1,
			Raw:      msg,
		}, nil
	}
}

// Progress is a no-op: RabbitMQ has no per-message progress.
func (a *AMQPJobSource) Progress(ctx context.Context, delivery *domain.Delivery, percent int) error {
	return nil
}

func (a *AMQPJobSource) Ack(ctx context.Context, delivery *domain.Delivery) error {
	msg, ok := delivery.Raw.(amqp.Delivery)
	if !ok {
		return fmt.Errorf("delivery %s was not consumed from rabbitmq", delivery.ID)
	}
	return msg.Ack(false)
}

func (a *AMQPJobSource) Close() error {
	if err := a.ch.Close(); err != nil {
		a.conn.Close()
		return err
	}
	return a.conn.Close()
}

func deliveryAttempts(msg *amqp.Delivery) int {
	if raw, ok := msg.Headers["x-death"]; ok {
		if deaths, ok := raw.([]interface{}); ok && len(deaths) > 0 {
			if table, ok := deaths[0].(amqp.Table); ok {
				if count, ok := table["count"].(int64); ok {
					return int(count)
				}
			}
		}
	}
	if msg.Redelivered {
		return 1
	}
	return 0
}
