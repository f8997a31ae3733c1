package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailer/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededSnapshot() domain.JobSnapshot {
	sendTime := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.JobSnapshot{
		JobID:     21,
		Name:      "spring-sale",
		Type:      "timing",
		SendMode:  domain.SendModeSample,
		AppID:     4,
		UserID:    8,
		SampleID:  2,
		Total:     10,
		Status:    domain.JobStatusLoading,
		SendTime:  &sendTime,
		CreatedAt: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
	}
}

func TestCacheSynchronizer_MergeCounters(t *testing.T) {
	cache := newMemoryCache()
	seeded := seededSnapshot()
	require.NoError(t, cache.Set(context.Background(), domain.ScheduleCacheKey(21), seeded))
	synchronizer := NewCacheSynchronizer(cache)

	err := synchronizer.MergeCounters(context.Background(), 21, domain.Counters{Success: 3, Failure: 1})
	require.NoError(t, err)

	var got domain.JobSnapshot
	found, err := cache.Get(context.Background(), domain.ScheduleCacheKey(21), &got)
	require.NoError(t, err)
	require.True(t, found)

	expected := seeded
	expected.Success = 3
	expected.Failure = 1
	assert.Equal(t, expected.Name, got.Name)
	assert.Equal(t, expected.Total, got.Total)
	assert.Equal(t, expected.Status, got.Status)
	assert.Equal(t, expected.Success, got.Success)
	assert.Equal(t, expected.Failure, got.Failure)
	assert.True(t, expected.SendTime.Equal(*got.SendTime))
	assert.True(t, expected.CreatedAt.Equal(got.CreatedAt))
}

func TestCacheSynchronizer_MergeIsIdempotent(t *testing.T) {
	cache := newMemoryCache()
	require.NoError(t, cache.Set(context.Background(), domain.ScheduleCacheKey(21), seededSnapshot()))
	synchronizer := NewCacheSynchronizer(cache)

	counters := domain.Counters{Success: 5}
	require.NoError(t, synchronizer.MergeCounters(context.Background(), 21, counters))
	require.NoError(t, synchronizer.MergeCounters(context.Background(), 21, counters))

	var got domain.JobSnapshot
	_, err := cache.Get(context.Background(), domain.ScheduleCacheKey(21), &got)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Success)
	assert.Zero(t, got.Failure)
}

func TestCacheSynchronizer_MissingSnapshotIsNoop(t *testing.T) {
	cache := newMemoryCache()
	synchronizer := NewCacheSynchronizer(cache)

	err := synchronizer.MergeCounters(context.Background(), 99, domain.Counters{Success: 1})

	assert.NoError(t, err)
	assert.Zero(t, cache.setCount())
	found, _ := cache.Get(context.Background(), domain.ScheduleCacheKey(99), &domain.JobSnapshot{})
	assert.False(t, found)
}

func TestCacheSynchronizer_ReadErrorPropagates(t *testing.T) {
	cache := newMemoryCache()
	cache.failGets(errors.New("connection reset"))
	synchronizer := NewCacheSynchronizer(cache)

	err := synchronizer.MergeCounters(context.Background(), 21, domain.Counters{Success: 1})

	assert.ErrorContains(t, err, "connection reset")
	assert.Zero(t, cache.setCount())
}

func TestCacheSynchronizer_MarkStatus(t *testing.T) {
	cache := newMemoryCache()
	require.NoError(t, cache.Set(context.Background(), domain.ScheduleCacheKey(21), seededSnapshot()))
	synchronizer := NewCacheSynchronizer(cache)

	require.NoError(t, synchronizer.MarkStatus(context.Background(), 21, domain.JobStatusFulfilled))
	require.NoError(t, synchronizer.MarkStatus(context.Background(), 22, domain.JobStatusFulfilled))

	var got domain.JobSnapshot
	_, err := cache.Get(context.Background(), domain.ScheduleCacheKey(21), &got)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFulfilled, got.Status)
	assert.Equal(t, "spring-sale", got.Name)
}

func TestCacheSynchronizer_PreservesUndeclaredFields(t *testing.T) {
	cache := newMemoryCache()
	cache.values[domain.ScheduleCacheKey(21)] = []byte(`{"id":21,"jobId":5,"name":"n","content":"<p>hi</p>",` +
		`"app":{"appId":4,"name":"shop"},"total":10,"success":0,"failure":0,"status":"loading"}`)
	synchronizer := NewCacheSynchronizer(cache)

	require.NoError(t, synchronizer.MergeCounters(context.Background(), 21, domain.Counters{Success: 3, Failure: 1}))
	require.NoError(t, synchronizer.MarkStatus(context.Background(), 21, domain.JobStatusFulfilled))

	assert.JSONEq(t, `{"id":21,"jobId":5,"name":"n","content":"<p>hi</p>",`+
		`"app":{"appId":4,"name":"shop"},"total":10,"success":3,"failure":1,"status":"fulfilled"}`,
		string(cache.values[domain.ScheduleCacheKey(21)]))
}

func TestCacheSynchronizer_RejectsNonObjectSnapshot(t *testing.T) {
	cache := newMemoryCache()
	cache.values[domain.ScheduleCacheKey(21)] = []byte(`null`)
	synchronizer := NewCacheSynchronizer(cache)

	err := synchronizer.MergeCounters(context.Background(), 21, domain.Counters{Success: 1})

	assert.ErrorContains(t, err, "not an object")
	assert.Zero(t, cache.setCount())
}
