package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps jobs in memory. It is safe for concurrent use within a
// single process.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemoryStore returns a new in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Enqueue stores a job.
func (s *MemoryStore) Enqueue(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return ErrDuplicateJob
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// Claim claims due jobs in AvailableAt, then CreatedAt order.
func (s *MemoryStore) Claim(_ context.Context, workerID string, now time.Time, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*Job, 0)
	for _, job := range s.jobs {
		if job.Status.Claimable() && !job.AvailableAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].AvailableAt.Equal(due[j].AvailableAt) {
			return due[i].AvailableAt.Before(due[j].AvailableAt)
		}
		if !due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*Job, 0, len(due))
	for _, job := range due {
		started := now
		job.Status = StatusRunning
		job.Attempts++
		job.LockedBy = workerID
		job.StartedAt = &started
		job.UpdatedAt = now
		claimed = append(claimed, cloneJob(job))
	}
	return claimed, nil
}

// leased returns the job if workerID holds its lease. Callers hold s.mu.
func (s *MemoryStore) leased(id, workerID string) (*Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status != StatusRunning || job.LockedBy != workerID {
		return nil, ErrLeaseLost
	}
	return job, nil
}

// Complete marks a leased job completed.
func (s *MemoryStore) Complete(_ context.Context, id, workerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.leased(id, workerID)
	if err != nil {
		return err
	}
	finished := now
	job.Status = StatusCompleted
	job.LockedBy = ""
	job.LastError = ""
	job.FinishedAt = &finished
	job.UpdatedAt = now
	return nil
}

// Fail records a failed attempt of a leased job.
func (s *MemoryStore) Fail(_ context.Context, id, workerID string, now time.Time, lastError string, retryAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.leased(id, workerID)
	if err != nil {
		return err
	}
	job.LockedBy = ""
	job.LastError = lastError
	job.UpdatedAt = now
	if retryAt != nil {
		job.Status = StatusRetry
		job.AvailableAt = *retryAt
		return nil
	}
	finished := now
	job.Status = StatusFailed
	job.FinishedAt = &finished
	return nil
}

// Get returns a job by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// Heartbeat renews the leases held by workerID.
func (s *MemoryStore) Heartbeat(_ context.Context, workerID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.Status == StatusRunning && job.LockedBy == workerID {
			job.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// RequeueExpired returns running jobs with leases older than staleBefore to
// the queued state.
func (s *MemoryStore) RequeueExpired(_ context.Context, now, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.Status != StatusRunning || !job.UpdatedAt.Before(staleBefore) {
			continue
		}
		job.Status = StatusQueued
		job.LockedBy = ""
		job.AvailableAt = now
		job.UpdatedAt = now
		n++
	}
	return n, nil
}

// Counts returns the number of jobs per status.
func (s *MemoryStore) Counts(_ context.Context) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[Status]int, len(Statuses))
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

// Prune deletes terminal jobs last updated before the cutoff.
func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(before) {
			delete(s.jobs, id)
			pruned++
		}
	}
	return pruned, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
