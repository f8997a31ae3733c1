package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SyncRunner periodically retries throttled syncs whose last run failed, so a
// job whose final sync failed still converges without further messages.
type SyncRunner struct {
	throttles *ThrottleRegistry
	counters  *CounterStore
	spec      string
	logger    zerolog.Logger
}

func NewSyncRunner(throttles *ThrottleRegistry, counters *CounterStore, spec string, logger zerolog.Logger) *SyncRunner {
	return &SyncRunner{
		throttles: throttles,
		counters:  counters,
		spec:      spec,
		logger:    logger,
	}
}

func (r *SyncRunner) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(r.spec, r.tick); err != nil {
		return fmt.Errorf("invalid resync spec %q: %w", r.spec, err)
	}

	r.logger.Info().Str("spec", r.spec).Msg("starting resync runner")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info().Msg("resync runner stopped")
	return nil
}

func (r *SyncRunner) tick() {
	r.logger.Debug().
		Int("counters", r.counters.Len()).
		Int("throttles", r.throttles.Len()).
		Msg("resync tick")
	r.throttles.RetryFailed()
}
