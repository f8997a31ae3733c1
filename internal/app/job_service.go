package app

import (
	"context"
	"time"

	"mailer/internal/domain"
)

// JobProgress combines the durable schedule with the live in-process tally.
type JobProgress struct {
	JobID     int64            `json:"jobId"`
	Name      string           `json:"name"`
	Status    domain.JobStatus `json:"status"`
	Total     uint64           `json:"total"`
	Persisted domain.Counters  `json:"persisted"`
	Live      *domain.Counters `json:"live,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type RuntimeStats struct {
	Counters  int `json:"counters"`
	Throttles int `json:"throttles"`
}

type JobService interface {
	GetProgress(ctx context.Context, jobID int64) (*JobProgress, error)
	ListRecords(ctx context.Context, jobID int64, limit int) ([]*domain.SendRecord, error)
	Stats() RuntimeStats
}

type jobService struct {
	schedules domain.ScheduleRepository
	records   domain.RecordRepository
	counters  *CounterStore
	throttles *ThrottleRegistry
}

func NewJobService(schedules domain.ScheduleRepository, records domain.RecordRepository, counters *CounterStore, throttles *ThrottleRegistry) JobService {
	return &jobService{
		schedules: schedules,
		records:   records,
		counters:  counters,
		throttles: throttles,
	}
}

func (s *jobService) GetProgress(ctx context.Context, jobID int64) (*JobProgress, error) {
	record, err := s.schedules.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	progress := &JobProgress{
		JobID:     record.JobID,
		Name:      record.Name,
		Status:    record.Status,
		Total:     record.Total,
		Persisted: record.Counters(),
		UpdatedAt: record.UpdatedAt,
	}
	if live, ok := s.counters.Peek(jobID); ok {
		progress.Live = &live
	}
	return progress, nil
}

func (s *jobService) ListRecords(ctx context.Context, jobID int64, limit int) ([]*domain.SendRecord, error) {
	const defaultLimit = 100
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}
	return s.records.ListRecords(ctx, jobID, limit)
}

func (s *jobService) Stats() RuntimeStats {
	return RuntimeStats{
		Counters:  s.counters.Len(),
		Throttles: s.throttles.Len(),
	}
}
