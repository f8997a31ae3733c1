package domain

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusLoading    JobStatus = "loading"
	JobStatusFulfilled  JobStatus = "fulfilled"
	JobStatusRejected   JobStatus = "rejected"
	JobStatusInitiative JobStatus = "initiative"
	JobStatusAutomatic  JobStatus = "automatic"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusFulfilled, JobStatusRejected, JobStatusInitiative, JobStatusAutomatic:
		return true
	default:
		return false
	}
}

// Counters is the running success/failure tally of one job.
type Counters struct {
	Success uint64 `json:"success"`
	Failure uint64 `json:"failure"`
}

func (c Counters) Total() uint64 {
	return c.Success + c.Failure
}

// ScheduleRecord is the durable aggregate row of a send job.
type ScheduleRecord struct {
	JobID     int64
	Name      string
	Type      string
	SendMode  SendMode
	Total     uint64
	Success   uint64
	Failure   uint64
	Status    JobStatus
	SendTime  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *ScheduleRecord) Counters() Counters {
	return Counters{Success: r.Success, Failure: r.Failure}
}

// JobSnapshot is the typed view of the cached job. The worker patches only
// the counter and status fields in place; the job-creation path may store
// more fields than are declared here.
type JobSnapshot struct {
	JobID     int64      `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	SendMode  SendMode   `json:"super"`
	AppID     int64      `json:"appId"`
	UserID    int64      `json:"userId"`
	SampleID  int64      `json:"sampleId,omitempty"`
	Total     uint64     `json:"total"`
	Success   uint64     `json:"success"`
	Failure   uint64     `json:"failure"`
	Status    JobStatus  `json:"status"`
	SendTime  *time.Time `json:"sendTime,omitempty"`
	CreatedAt time.Time  `json:"createTime"`
}

type AppSnapshot struct {
	AppID int64  `json:"appId"`
	Name  string `json:"name"`
}

type UserSnapshot struct {
	UID      int64  `json:"uid"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

type TemplateSnapshot struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Cover   string `json:"cover"`
	Content string `json:"content"`
}

// Cache keys shared with the job-creation path that seeds the snapshots.
func ScheduleCacheKey(jobID int64) string    { return fmt.Sprintf("mailer:schedule:%d", jobID) }
func AppCacheKey(appID int64) string         { return fmt.Sprintf("mailer:app:%d", appID) }
func TemplateCacheKey(sampleID int64) string { return fmt.Sprintf("mailer:template:%d", sampleID) }
func UserCacheKey(userID int64) string       { return fmt.Sprintf("user:basic:%d", userID) }
