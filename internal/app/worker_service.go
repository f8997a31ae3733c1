package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mailer/internal/domain"
)

const dequeueErrorBackoff = time.Second

type WorkerOptions struct {
	Workers        int
	DequeueTimeout time.Duration
	// RatePerSec bounds how many deliveries are pulled per second across all workers; 0 disables the limit.
	RatePerSec int
}

type WorkerService struct {
	source         domain.JobSource
	handler        domain.DeliveryHandler
	workers        int
	dequeueTimeout time.Duration
	limiter        *rate.Limiter
	logger         zerolog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

func NewWorkerService(parent context.Context, source domain.JobSource, handler domain.DeliveryHandler, opts WorkerOptions, logger zerolog.Logger) *WorkerService {
	ctx, cancel := context.WithCancel(parent)
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.DequeueTimeout <= 0 {
		opts.DequeueTimeout = 5 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}
	return &WorkerService{
		source:         source,
		handler:        handler,
		workers:        opts.Workers,
		dequeueTimeout: opts.DequeueTimeout,
		limiter:        limiter,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run starts the workers and blocks until the service is stopped.
func (s *WorkerService) Run() error {
	if s.handler == nil {
		return errors.New("handler cannot be nil")
	}
	if err := s.ctx.Err(); err != nil {
		return err
	}

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.loop(id)
		}(i)
	}
	s.logger.Info().Int("workers", s.workers).Msg("worker started")

	s.wg.Wait()
	return s.ctx.Err()
}

func (s *WorkerService) loop(id int) {
	log := s.logger.With().Int("worker_id", id).Logger()
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(s.ctx); err != nil {
				return
			}
		}

		pollCtx, pollCancel := context.WithTimeout(s.ctx, s.dequeueTimeout+time.Second)
		delivery, err := s.source.Dequeue(pollCtx, s.dequeueTimeout)
		pollCancel()

		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("dequeue failed")
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(dequeueErrorBackoff):
			}
			continue
		}
		if delivery == nil {
			continue
		}
		s.settle(log, delivery)
	}
}

// settle runs the handler and then reports progress and acknowledges,
// whatever the handler returned. A dequeued delivery is always carried to its
// Ack, even across a Stop.
func (s *WorkerService) settle(log zerolog.Logger, delivery *domain.Delivery) {
	log = log.With().Str("delivery_id", delivery.ID).Logger()
	settleCtx := context.WithoutCancel(s.ctx)

	if err := s.handle(settleCtx, delivery); err != nil {
		log.Warn().Err(err).Msg("delivery handled with error")
	}

	if err := s.source.Progress(settleCtx, delivery, 100); err != nil {
		log.Warn().Err(err).Msg("failed to report progress")
	}
	if err := s.source.Ack(settleCtx, delivery); err != nil {
		log.Error().Err(err).Msg("failed to acknowledge delivery")
	}
}

func (s *WorkerService) handle(ctx context.Context, delivery *domain.Delivery) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return s.handler(ctx, delivery)
}

// Stop cancels the workers and waits for in-flight deliveries until ctx expires.
func (s *WorkerService) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
