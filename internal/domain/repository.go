package domain

import "context"

type ScheduleRepository interface {
	FindByJobID(ctx context.Context, jobID int64) (*ScheduleRecord, error)
	UpdateCounters(ctx context.Context, jobID int64, counters Counters) error
	UpdateStatus(ctx context.Context, jobID int64, status JobStatus) error
}

type RecordRepository interface {
	CreateRecord(ctx context.Context, record *SendRecord) error
	ListRecords(ctx context.Context, jobID int64, limit int) ([]*SendRecord, error)
}

// CacheStore is a plain key-value store; no transactional guarantees are assumed.
type CacheStore interface {
	// Get decodes the value stored under key into dst. It reports false when the key is absent.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}
