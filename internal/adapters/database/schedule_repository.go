package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailer/internal/domain"
)

type PostgresScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresScheduleRepository(pool *pgxpool.Pool) domain.ScheduleRepository {
	return &PostgresScheduleRepository{pool: pool}
}

func (r *PostgresScheduleRepository) CreateSchedule(ctx context.Context, record *domain.ScheduleRecord) error {
	if record.Status == "" {
		record.Status = domain.JobStatusPending
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO mailer_schedules (job_id, name, type, super, total, success, failure, status, send_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		record.JobID, record.Name, record.Type, record.SendMode, int64(record.Total),
		int64(record.Success), int64(record.Failure), record.Status, record.SendTime,
	).Scan(&record.CreatedAt, &record.UpdatedAt)
}

func (r *PostgresScheduleRepository) FindByJobID(ctx context.Context, jobID int64) (*domain.ScheduleRecord, error) {
	var (
		record                  domain.ScheduleRecord
		total, success, failure int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT job_id, name, type, super, total, success, failure, status, send_time, created_at, updated_at
		 FROM mailer_schedules WHERE job_id = $1`, jobID,
	).Scan(
		&record.JobID, &record.Name, &record.Type, &record.SendMode,
		&total, &success, &failure, &record.Status,
		&record.SendTime, &record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", domain.ErrScheduleNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}

	record.Total = uint64(total)
	record.Success = uint64(success)
	record.Failure = uint64(failure)
	return &record, nil
}

// UpdateCounters overwrites the cumulative counters; replaying the same value is harmless.
func (r *PostgresScheduleRepository) UpdateCounters(ctx context.Context, jobID int64, counters domain.Counters) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE mailer_schedules SET success = $2, failure = $3, updated_at = NOW() WHERE job_id = $1`,
		jobID, int64(counters.Success), int64(counters.Failure),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", domain.ErrScheduleNotFound, jobID)
	}
	return nil
}

func (r *PostgresScheduleRepository) UpdateStatus(ctx context.Context, jobID int64, status domain.JobStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE mailer_schedules SET status = $2, updated_at = NOW() WHERE job_id = $1`,
		jobID, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", domain.ErrScheduleNotFound, jobID)
	}
	return nil
}
