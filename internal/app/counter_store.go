package app

import (
	"sync"

	"mailer/internal/domain"
)

type counterEntry struct {
	mu       sync.Mutex
	counters domain.Counters
}

// CounterStore keeps the in-memory success/failure tallies per job.
// Entries are created lazily and only removed through Evict.
type CounterStore struct {
	mu      sync.RWMutex
	entries map[int64]*counterEntry
}

func NewCounterStore() *CounterStore {
	return &CounterStore{
		entries: make(map[int64]*counterEntry),
	}
}

// Increment bumps the field named by outcome and returns the post-increment pair.
func (s *CounterStore) Increment(jobID int64, outcome domain.Outcome) domain.Counters {
	entry := s.entry(jobID)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	switch outcome {
	case domain.OutcomeFulfilled:
		entry.counters.Success++
	case domain.OutcomeRejected:
		entry.counters.Failure++
	}
	return entry.counters
}

// Peek returns the current tally without mutating it.
func (s *CounterStore) Peek(jobID int64) (domain.Counters, bool) {
	s.mu.RLock()
	entry, ok := s.entries[jobID]
	s.mu.RUnlock()
	if !ok {
		return domain.Counters{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.counters, true
}

func (s *CounterStore) Evict(jobID int64) {
	s.mu.Lock()
	delete(s.entries, jobID)
	s.mu.Unlock()
}

func (s *CounterStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *CounterStore) entry(jobID int64) *counterEntry {
	s.mu.RLock()
	entry, ok := s.entries[jobID]
	s.mu.RUnlock()
	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok = s.entries[jobID]; ok {
		return entry
	}
	entry = &counterEntry{}
	s.entries[jobID] = entry
	return entry
}
