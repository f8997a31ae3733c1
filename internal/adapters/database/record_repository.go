package database

import (
	"context"
	"database/sql"

	"mailer/internal/domain"
)

// PostgresRecordRepository appends to the send-record ledger. It never updates or deletes.
type PostgresRecordRepository struct {
	db *sql.DB
}

func NewPostgresRecordRepository(db *sql.DB) domain.RecordRepository {
	return &PostgresRecordRepository{db: db}
}

func (r *PostgresRecordRepository) CreateRecord(ctx context.Context, record *domain.SendRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mailer_records (
			id, job_id, job_name, app_id, app_name, receive, super, status,
			sample_id, sample_name, content, reason, user_id, nickname, avatar, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		record.ID, record.JobID, record.JobName, record.AppID, record.AppName,
		record.Recipient, record.SendMode, record.Outcome,
		record.SampleID, record.SampleName, record.Content, record.Reason,
		record.UserID, record.Nickname, record.Avatar, record.CreatedAt,
	)
	return err
}

func (r *PostgresRecordRepository) ListRecords(ctx context.Context, jobID int64, limit int) ([]*domain.SendRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job_id, job_name, app_id, app_name, receive, super, status,
			sample_id, sample_name, content, reason, user_id, nickname, avatar, created_at
		 FROM mailer_records WHERE job_id = $1
		 ORDER BY created_at DESC LIMIT $2`, jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.SendRecord
	for rows.Next() {
		var rec domain.SendRecord
		var appName, sampleName, content, reason, nickname, avatar sql.NullString
		var sampleID, userID sql.NullInt64
		if err := rows.Scan(
			&rec.ID, &rec.JobID, &rec.JobName, &rec.AppID, &appName,
			&rec.Recipient, &rec.SendMode, &rec.Outcome,
			&sampleID, &sampleName, &content, &reason,
			&userID, &nickname, &avatar, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.AppName = nullString(appName)
		rec.SampleName = nullString(sampleName)
		rec.Content = nullString(content)
		rec.Reason = nullString(reason)
		rec.Nickname = nullString(nickname)
		rec.Avatar = nullString(avatar)
		rec.SampleID = nullInt64(sampleID)
		rec.UserID = nullInt64(userID)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
