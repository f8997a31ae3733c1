package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/rs/zerolog"

	"mailer/internal/domain"
)

const defaultUserAgent = "mailer-worker"

// NSQJobSource adapts the push-based NSQ consumer to the pull-based JobSource.
// The handler parks each message on a channel and disables auto response, so
// the message stays in flight until Ack finishes it.
type NSQJobSource struct {
	consumer *nsq.Consumer
	producer *nsq.Producer
	topic    string
	messages chan *nsq.Message
	stopped  chan struct{}
	once     sync.Once
}

// NewNSQJobSource connects a consumer to nsqdAddr. Colons in topic are
// replaced with dots since NSQ topic names cannot contain them.
func NewNSQJobSource(nsqdAddr, topic, channel string, maxInFlight int, logger zerolog.Logger) (*NSQJobSource, error) {
	topic = strings.ReplaceAll(topic, ":", ".")
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if channel == "" {
		return nil, errors.New("channel is required")
	}
	if maxInFlight <= 0 {
		maxInFlight = 1
	}

	config := nsq.NewConfig()
	config.MaxInFlight = maxInFlight
	config.UserAgent = defaultUserAgent

	consumer, err := nsq.NewConsumer(topic, channel, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create NSQ consumer: %w", err)
	}
	consumer.SetLogger(nsqLogger{logger}, nsq.LogLevelInfo)

	producer, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create NSQ producer: %w", err)
	}
	producer.SetLogger(nsqLogger{logger}, nsq.LogLevelWarning)

	s := &NSQJobSource{
		consumer: consumer,
		producer: producer,
		topic:    topic,
		messages: make(chan *nsq.Message, maxInFlight),
		stopped:  make(chan struct{}),
	}
	consumer.AddHandler(nsq.HandlerFunc(s.park))

	if err := consumer.ConnectToNSQD(nsqdAddr); err != nil {
		producer.Stop()
		return nil, fmt.Errorf("failed to connect to nsqd %s: %w", nsqdAddr, err)
	}
	return s, nil
}

func (s *NSQJobSource) park(message *nsq.Message) error {
	message.DisableAutoResponse()
	select {
	case s.messages <- message:
	case <-s.stopped:
		message.Requeue(-1)
	}
	return nil
}

func (s *NSQJobSource) Publish(ctx context.Context, message *domain.Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return s.producer.Publish(s.topic, body)
}

func (s *NSQJobSource) Dequeue(ctx context.Context, timeout time.Duration) (*domain.Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case message := <-s.messages:
		return &domain.Delivery{
			ID:       string(message.ID[:]),
			Queue:    s.topic,
			Payload:  message.Body,
			Attempts: int(message.Attempts),
			Raw:      message,
		}, nil
	}
}

// Progress touches the message so nsqd extends its in-flight timeout.
func (s *NSQJobSource) Progress(ctx context.Context, delivery *domain.Delivery, percent int) error {
	message, ok := delivery.Raw.(*nsq.Message)
	if !ok {
		return fmt.Errorf("delivery %s was not consumed from nsq", delivery.ID)
	}
	message.Touch()
	return nil
}

func (s *NSQJobSource) Ack(ctx context.Context, delivery *domain.Delivery) error {
	message, ok := delivery.Raw.(*nsq.Message)
	if !ok {
		return fmt.Errorf("delivery %s was not consumed from nsq", delivery.ID)
	}
	message.Finish()
	return nil
}

func (s *NSQJobSource) Close() error {
	s.once.Do(func() {
		close(s.stopped)
		s.consumer.Stop()
		<-s.consumer.StopChan
		s.producer.Stop()
	})
	return nil
}

type nsqLogger struct {
	logger zerolog.Logger
}

func (l nsqLogger) Output(calldepth int, s string) error {
	l.logger.Debug().Msg(s)
	return nil
}
