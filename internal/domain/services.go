package domain

import "context"

// DeliveryHandler processes one dequeued delivery. The worker acknowledges the
// delivery whatever the handler returns; the error is only logged.
type DeliveryHandler func(context.Context, *Delivery) error

type WorkerService interface {
	// Run continuously pulls deliveries from the job source until stopped
	Run() error
	// Stop gracefully shuts down the worker service
	Stop(ctx context.Context) error
}

type SyncService interface {
	// RetryFailed re-invokes every throttled sync whose last run failed
	RetryFailed()
	// Flush runs every pending throttled sync immediately and waits for it
	Flush(ctx context.Context)
}
