package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/bankfeed/internal/jobs"
)

// DefaultRetention is how many finished jobs a Store keeps.
const DefaultRetention = 500

// Store keeps job records in memory for status polling. Finished jobs
// beyond the retention limit are evicted oldest first; pending and running
// jobs are never evicted. Data is lost on restart.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*jobs.Job
	retention int
}

// NewStore creates a Store with DefaultRetention.
func NewStore() *Store {
	return NewStoreWithRetention(DefaultRetention)
}

// NewStoreWithRetention creates a Store keeping at most n finished jobs.
// n <= 0 disables eviction.
func NewStoreWithRetention(n int) *Store {
	return &Store{
		jobs:      make(map[string]*jobs.Job),
		retention: n,
	}
}

// SaveJob stores a copy of job, replacing any record with the same id.
func (s *Store) SaveJob(ctx context.Context, job *jobs.Job) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *job
	s.jobs[job.JobID] = &saved
	if saved.Status.Finished() {
		s.evictLocked()
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob %s: %w", jobID, jobs.ErrJobNotFound)
	}
	out := *job
	return &out, nil
}

// ListJobs returns matching jobs newest first, ties broken by id.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.Job{}
	for _, job := range s.jobs {
		if !matches(job, filter) {
			continue
		}
		out := *job
		result = append(result, &out)
	}
	sortNewestFirst(result)

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.Job{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("UpdateJobStatus %s: %w", jobID, jobs.ErrJobNotFound)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	if status.Finished() {
		s.evictLocked()
	}
	return nil
}

// evictLocked drops the oldest finished jobs beyond the retention limit.
func (s *Store) evictLocked() {
	if s.retention <= 0 {
		return
	}

	var finished []*jobs.Job
	for _, job := range s.jobs {
		if job.Status.Finished() {
			finished = append(finished, job)
		}
	}
	if len(finished) <= s.retention {
		return
	}

	sortNewestFirst(finished)
	for _, job := range finished[s.retention:] {
		delete(s.jobs, job.JobID)
	}
}

func matches(job *jobs.Job, f jobs.JobFilter) bool {
	if f.Type != "" && job.Type != f.Type {
		return false
	}
	if f.Trigger != "" && job.Trigger != f.Trigger {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	return true
}

func sortNewestFirst(list []*jobs.Job) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].JobID < list[j].JobID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

var _ jobs.JobStore = (*Store)(nil)
