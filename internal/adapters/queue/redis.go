package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"mailer/internal/domain"
)

// envelope is the list element stored in Redis.
type envelope struct {
	ID       string          `json:"id"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// RedisJobSource is a reliable-list queue: Dequeue moves the element to a
// processing list and Ack removes it from there. Elements left in the
// processing list after a crash are put back by Recover.
type RedisJobSource struct {
	client *redis.Client
	queue  string
}

func NewRedisJobSource(client *redis.Client, queue string) *RedisJobSource {
	return &RedisJobSource{client: client, queue: queue}
}

func (r *RedisJobSource) processingKey() string { return r.queue + ":processing" }
func (r *RedisJobSource) progressKey() string   { return r.queue + ":progress" }

// Publish enqueues one message. The upstream scheduler normally does this.
func (r *RedisJobSource) Publish(ctx context.Context, message *domain.Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	raw, err := json.Marshal(envelope{ID: uuid.NewString(), Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	return r.client.LPush(ctx, r.queue, raw).Err()
}

func (r *RedisJobSource) Dequeue(ctx context.Context, timeout time.Duration) (*domain.Delivery, error) {
	raw, err := r.client.BRPopLPush(ctx, r.queue, r.processingKey(), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// keep the element so Ack can still remove it from the processing list
		return &domain.Delivery{ID: "malformed", Queue: r.queue, Payload: []byte(raw), Raw: raw}, nil
	}
	return &domain.Delivery{
		ID:       env.ID,
		Queue:    r.queue,
		Payload:  env.Payload,
		Attempts: env.Attempts + 1,
		Raw:      raw,
	}, nil
}

func (r *RedisJobSource) Progress(ctx context.Context, delivery *domain.Delivery, percent int) error {
	return r.client.HSet(ctx, r.progressKey(), delivery.ID, strconv.Itoa(percent)).Err()
}

func (r *RedisJobSource) Ack(ctx context.Context, delivery *domain.Delivery) error {
	raw, ok := delivery.Raw.(string)
	if !ok {
		return fmt.Errorf("delivery %s was not dequeued from redis", delivery.ID)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, r.processingKey(), 1, raw)
		pipe.HDel(ctx, r.progressKey(), delivery.ID)
		return nil
	})
	return err
}

// Recover moves every element stuck in the processing list back onto the
// queue, bumping its attempt count. Call it before starting workers.
func (r *RedisJobSource) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		raw, err := r.client.RPop(ctx, r.processingKey()).Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}

		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err == nil {
			env.Attempts++
			if b, err := json.Marshal(env); err == nil {
				raw = string(b)
			}
		}
		if err := r.client.RPush(ctx, r.queue, raw).Err(); err != nil {
			return moved, err
		}
		moved++
	}
}

// Close is a no-op; the client is shared with the cache and owned by the caller.
func (r *RedisJobSource) Close() error {
	return nil
}
