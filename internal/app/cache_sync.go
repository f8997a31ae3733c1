package app

import (
	"context"
	"encoding/json"
	"fmt"

	"mailer/internal/domain"
)

// CacheSynchronizer overlays live counters onto the cached job snapshot.
// Only the fields it owns are rewritten; everything else the job-creation
// path stored is carried over untouched.
type CacheSynchronizer struct {
	cache domain.CacheStore
}

func NewCacheSynchronizer(cache domain.CacheStore) *CacheSynchronizer {
	return &CacheSynchronizer{cache: cache}
}

// MergeCounters is a plain read-then-write without compare-and-swap. Callers
// must serialize merges per job; the throttle handle does that.
// A missing snapshot is left alone since only the job-creation path seeds it.
func (s *CacheSynchronizer) MergeCounters(ctx context.Context, jobID int64, counters domain.Counters) error {
	return s.patch(ctx, jobID, map[string]any{
		"success": counters.Success,
		"failure": counters.Failure,
	})
}

// MarkStatus rewrites the cached snapshot status, again only when a snapshot exists.
func (s *CacheSynchronizer) MarkStatus(ctx context.Context, jobID int64, status domain.JobStatus) error {
	return s.patch(ctx, jobID, map[string]any{"status": status})
}

func (s *CacheSynchronizer) patch(ctx context.Context, jobID int64, fields map[string]any) error {
	key := domain.ScheduleCacheKey(jobID)

	var snapshot map[string]json.RawMessage
	found, err := s.cache.Get(ctx, key, &snapshot)
	if err != nil {
		return fmt.Errorf("failed to read job snapshot %d: %w", jobID, err)
	}
	if !found {
		return nil
	}
	if snapshot == nil {
		return fmt.Errorf("job snapshot %d is not an object", jobID)
	}

	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s for job snapshot %d: %w", name, jobID, err)
		}
		snapshot[name] = raw
	}
	if err := s.cache.Set(ctx, key, snapshot); err != nil {
		return fmt.Errorf("failed to write job snapshot %d: %w", jobID, err)
	}
	return nil
}
