package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/bankfeed/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, store *Store, jobID string, status jobs.JobStatus) *jobs.Job {
	t.Helper()
	var got *jobs.Job
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_PublishDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(store, Options{})
	defer q.Close()

	job := &jobs.Job{Type: jobs.JobTypeClassifyAll}
	require.NoError(t, q.Publish(context.Background(), job))

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, 0, job.MaxRetries)

	saved, err := store.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, saved.Status)
}

func TestQueue_PublishRejectsUnknownType(t *testing.T) {
	q := NewQueue(nil, Options{})
	defer q.Close()

	err := q.Publish(context.Background(), &jobs.Job{Type: "parse_pdf"})
	assert.Error(t, err)
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(nil, Options{})
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), &jobs.Job{Type: jobs.JobTypeClassifyAll})
	assert.Error(t, err)
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(store, Options{})
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) (interface{}, error) {
		return map[string]int{"updated": 3}, nil
	}))

	job := &jobs.Job{Type: jobs.JobTypeClassifyAll}
	require.NoError(t, q.Publish(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, map[string]int{"updated": 3}, done.Result)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)
}

func TestQueue_FailureWithoutRetries(t *testing.T) {
	store := NewStore()
	q := NewQueue(store, Options{})
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("rule store offline")
	}))

	job := &jobs.Job{Type: jobs.JobTypeImportSheet}
	require.NoError(t, q.Publish(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "rule store offline", failed.Error)
	assert.Equal(t, 0, failed.RetryCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	store := NewStore()
	q := NewQueue(store, Options{MaxRetries: 2, Backoff: time.Millisecond})
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}))

	job := &jobs.Job{Type: jobs.JobTypeClassifyAll}
	require.NoError(t, q.Publish(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 1, done.RetryCount)
	assert.Equal(t, "ok", done.Result)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQueue_RecoversHandlerPanic(t *testing.T) {
	store := NewStore()
	q := NewQueue(store, Options{})
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) (interface{}, error) {
		if job.Type == jobs.JobTypeImportSheet {
			panic("boom")
		}
		return nil, nil
	}))

	bad := &jobs.Job{Type: jobs.JobTypeImportSheet}
	require.NoError(t, q.Publish(ctx, bad))
	failed := waitForStatus(t, store, bad.JobID, jobs.JobStatusFailed)
	assert.Contains(t, failed.Error, "panicked")

	// The worker is still alive.
	good := &jobs.Job{Type: jobs.JobTypeClassifyAll}
	require.NoError(t, q.Publish(ctx, good))
	waitForStatus(t, store, good.JobID, jobs.JobStatusCompleted)
}

func TestQueue_SingleWorkerNeverOverlaps(t *testing.T) {
	store := NewStore()
	q := NewQueue(store, Options{})
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running, maxRunning int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) (interface{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}))

	var last *jobs.Job
	for i := 0; i < 4; i++ {
		last = &jobs.Job{Type: jobs.JobTypeClassifyAll}
		require.NoError(t, q.Publish(ctx, last))
	}

	waitForStatus(t, store, last.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
}
