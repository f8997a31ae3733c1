package app

import (
	"context"
	"errors"
	"fmt"

	"mailer/internal/domain"
)

// ScheduleAggregator is the durable target of the throttled job sync.
type ScheduleAggregator struct {
	repo domain.ScheduleRepository
}

func NewScheduleAggregator(repo domain.ScheduleRepository) *ScheduleAggregator {
	return &ScheduleAggregator{repo: repo}
}

func (a *ScheduleAggregator) UpdateCounters(ctx context.Context, jobID int64, counters domain.Counters) error {
	if err := a.repo.UpdateCounters(ctx, jobID, counters); err != nil {
		return fmt.Errorf("failed to update schedule counters %d: %w", jobID, err)
	}
	return nil
}

// Closed reports whether the job's schedule already carries a terminal status.
// An unknown job is not closed.
func (a *ScheduleAggregator) Closed(ctx context.Context, jobID int64) (bool, error) {
	record, err := a.repo.FindByJobID(ctx, jobID)
	if errors.Is(err, domain.ErrScheduleNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load schedule %d: %w", jobID, err)
	}
	return record.Status.Terminal(), nil
}

// CompleteIfDone closes the schedule once every dispatched message has been
// accounted for. It returns the terminal status it wrote, or "" when the job
// is still in flight.
func (a *ScheduleAggregator) CompleteIfDone(ctx context.Context, jobID int64, counters domain.Counters) (domain.JobStatus, error) {
	record, err := a.repo.FindByJobID(ctx, jobID)
	if errors.Is(err, domain.ErrScheduleNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load schedule %d: %w", jobID, err)
	}
	if record.Status.Terminal() {
		return record.Status, nil
	}
	if record.Total == 0 || counters.Total() < record.Total {
		return "", nil
	}

	status := domain.JobStatusFulfilled
	if counters.Success == 0 {
		status = domain.JobStatusRejected
	}
	if err := a.repo.UpdateStatus(ctx, jobID, status); err != nil {
		return "", fmt.Errorf("failed to close schedule %d: %w", jobID, err)
	}
	return status, nil
}
