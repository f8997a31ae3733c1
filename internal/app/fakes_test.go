package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"mailer/internal/domain"
)

// memoryCache mimics the Redis store: values go through JSON so callers never
// share memory with the stored copy.
type memoryCache struct {
	mu     sync.Mutex
	values map[string][]byte
	sets   int
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return false, c.getErr
	}
	data, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (c *memoryCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = data
	c.sets++
	return nil
}

func (c *memoryCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func (c *memoryCache) failGets(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getErr = err
}

type counterUpdate struct {
	jobID    int64
	counters domain.Counters
	at       time.Time
}

// memorySchedules is an in-memory ScheduleRepository that keeps a log of
// counter writes.
type memorySchedules struct {
	mu        sync.Mutex
	records   map[int64]*domain.ScheduleRecord
	updates   []counterUpdate
	updateErr error
}

func newMemorySchedules(records ...*domain.ScheduleRecord) *memorySchedules {
	s := &memorySchedules{records: make(map[int64]*domain.ScheduleRecord)}
	for _, r := range records {
		s.records[r.JobID] = r
	}
	return s
}

func (s *memorySchedules) FindByJobID(ctx context.Context, jobID int64) (*domain.ScheduleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrScheduleNotFound, jobID)
	}
	cp := *r
	return &cp, nil
}

func (s *memorySchedules) UpdateCounters(ctx context.Context, jobID int64, counters domain.Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	r, ok := s.records[jobID]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrScheduleNotFound, jobID)
	}
	r.Success = counters.Success
	r.Failure = counters.Failure
	s.updates = append(s.updates, counterUpdate{jobID: jobID, counters: counters, at: time.Now()})
	return nil
}

func (s *memorySchedules) UpdateStatus(ctx context.Context, jobID int64, status domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrScheduleNotFound, jobID)
	}
	r.Status = status
	return nil
}

func (s *memorySchedules) failUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

func (s *memorySchedules) counterUpdates() []counterUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]counterUpdate(nil), s.updates...)
}

func (s *memorySchedules) status(jobID int64) domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[jobID]; ok {
		return r.Status
	}
	return ""
}

type memoryRecords struct {
	mu      sync.Mutex
	records []*domain.SendRecord
}

func (r *memoryRecords) CreateRecord(ctx context.Context, record *domain.SendRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *memoryRecords) ListRecords(ctx context.Context, jobID int64, limit int) ([]*domain.SendRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SendRecord
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		if r.records[i].JobID == jobID {
			out = append(out, r.records[i])
		}
	}
	return out, nil
}

func (r *memoryRecords) all() []*domain.SendRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.SendRecord(nil), r.records...)
}

// scriptedSender fails for recipients listed in reject.
type scriptedSender struct {
	mu     sync.Mutex
	reject map[string]bool
	sent   []domain.Envelope
}

func (s *scriptedSender) Send(ctx context.Context, envelope domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject[envelope.Recipient] {
		return errors.New("mailbox unavailable")
	}
	s.sent = append(s.sent, envelope)
	return nil
}

func (s *scriptedSender) envelopes() []domain.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Envelope(nil), s.sent...)
}
