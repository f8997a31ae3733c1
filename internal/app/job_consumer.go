package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailer/internal/domain"
)

// JobConsumer processes one send message at a time: count, record, then
// hand the job's persistence to its throttle handle.
type JobConsumer struct {
	counters   *CounterStore
	throttles  *ThrottleRegistry
	cacheSync  *CacheSynchronizer
	aggregator *ScheduleAggregator
	records    domain.RecordRepository
	cache      domain.CacheStore
	strategies map[domain.SendMode]SendStrategy
	interval   time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

type ConsumerOption func(*JobConsumer)

// WithStrategy replaces the strategy used for mode.
func WithStrategy(mode domain.SendMode, strategy SendStrategy) ConsumerOption {
	return func(c *JobConsumer) {
		c.strategies[mode] = strategy
	}
}

func WithClock(now func() time.Time) ConsumerOption {
	return func(c *JobConsumer) {
		c.now = now
	}
}

func NewJobConsumer(
	counters *CounterStore,
	throttles *ThrottleRegistry,
	cacheSync *CacheSynchronizer,
	aggregator *ScheduleAggregator,
	records domain.RecordRepository,
	cache domain.CacheStore,
	sender domain.Sender,
	interval time.Duration,
	logger zerolog.Logger,
	opts ...ConsumerOption,
) *JobConsumer {
	c := &JobConsumer{
		counters:   counters,
		throttles:  throttles,
		cacheSync:  cacheSync,
		aggregator: aggregator,
		records:    records,
		cache:      cache,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
		strategies: map[domain.SendMode]SendStrategy{
			domain.SendModeSample:    NewSampleStrategy(cache, sender, logger),
			domain.SendModeCustomize: &customizeStrategy{logger: logger},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle decodes a delivery and processes it. The caller acknowledges the
// delivery whatever this returns.
func (c *JobConsumer) Handle(ctx context.Context, delivery *domain.Delivery) error {
	msg, err := domain.DecodeMessage(delivery.Payload)
	if err != nil {
		c.logger.Error().Err(err).Str("delivery_id", delivery.ID).Msg("dropping malformed delivery")
		return err
	}
	c.ProcessMessage(ctx, msg)
	return nil
}

// ProcessMessage never fails outward; every error is logged here.
func (c *JobConsumer) ProcessMessage(ctx context.Context, msg *domain.Message) {
	log := c.logger.With().
		Int64("job_id", msg.JobID).
		Str("recipient", msg.Recipient).
		Str("send_mode", msg.SendMode).
		Logger()

	mode, err := domain.ParseSendMode(msg.SendMode)
	if err != nil {
		log.Error().Err(err).Msg("message acknowledged without processing")
		return
	}
	strategy, ok := c.strategies[mode]
	if !ok || strategy == nil {
		log.Error().Err(domain.ErrUnknownSendMode).Msg("no strategy registered, message acknowledged without processing")
		return
	}

	if result := strategy.Attempt(ctx, msg); result != nil {
		counters := c.counters.Increment(msg.JobID, result.Outcome)
		log.Debug().
			Str("outcome", string(result.Outcome)).
			Uint64("success", counters.Success).
			Uint64("failure", counters.Failure).
			Msg("message counted")

		c.record(ctx, log, msg, mode, result)
	}

	c.throttles.Ensure(msg.JobID, c.interval, c.syncJob(msg.JobID)).Invoke()
}

func (c *JobConsumer) record(ctx context.Context, log zerolog.Logger, msg *domain.Message, mode domain.SendMode, result *SendResult) {
	rec := &domain.SendRecord{
		ID:         uuid.NewString(),
		JobID:      msg.JobID,
		JobName:    msg.JobName,
		AppID:      msg.AppID,
		Recipient:  msg.Recipient,
		SendMode:   mode,
		Outcome:    result.Outcome,
		SampleID:   result.SampleID,
		SampleName: result.SampleName,
		Content:    result.Content,
		Reason:     result.Reason,
		CreatedAt:  c.now(),
	}

	var app domain.AppSnapshot
	if c.lookup(ctx, log, domain.AppCacheKey(msg.AppID), &app) {
		rec.AppName = &app.Name
	}
	var user domain.UserSnapshot
	if c.lookup(ctx, log, domain.UserCacheKey(msg.UserID), &user) {
		uid := user.UID
		rec.UserID = &uid
		rec.Nickname = &user.Nickname
		rec.Avatar = &user.Avatar
	}

	if err := c.records.CreateRecord(ctx, rec); err != nil {
		log.Error().Err(err).Msg("failed to write send record")
	}
}

func (c *JobConsumer) lookup(ctx context.Context, log zerolog.Logger, key string, dst any) bool {
	found, err := c.cache.Get(ctx, key, dst)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache lookup failed")
		return false
	}
	if !found {
		log.Warn().Str("key", key).Msg("cache entry missing")
	}
	return found
}

// syncJob builds the throttled callback for jobID. Counters are read when it
// fires, so one run covers every increment made before it.
func (c *JobConsumer) syncJob(jobID int64) SyncFunc {
	return func(ctx context.Context) error {
		counters, ok := c.counters.Peek(jobID)
		if !ok {
			return nil
		}

		// a redelivery after completion restarts the tally at zero and
		// must not overwrite the final counters
		closed, err := c.aggregator.Closed(ctx, jobID)
		if err != nil {
			return err
		}
		if closed {
			c.counters.Evict(jobID)
			c.throttles.Evict(jobID)
			c.logger.Warn().
				Int64("job_id", jobID).
				Uint64("success", counters.Success).
				Uint64("failure", counters.Failure).
				Msg("dropping counts for a completed job")
			return nil
		}

		err = errors.Join(
			c.cacheSync.MergeCounters(ctx, jobID, counters),
			c.aggregator.UpdateCounters(ctx, jobID, counters),
		)
		if err != nil {
			return err
		}

		status, err := c.aggregator.CompleteIfDone(ctx, jobID, counters)
		if err != nil {
			return err
		}
		if status == "" {
			return nil
		}
		if err := c.cacheSync.MarkStatus(ctx, jobID, status); err != nil {
			c.logger.Warn().Err(err).Int64("job_id", jobID).Msg("failed to mark cached job status")
		}
		c.counters.Evict(jobID)
		c.throttles.Evict(jobID)
		c.logger.Info().
			Int64("job_id", jobID).
			Str("status", string(status)).
			Uint64("success", counters.Success).
			Uint64("failure", counters.Failure).
			Msg("job completed")
		return nil
	}
}
