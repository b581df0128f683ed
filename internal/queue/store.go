package queue

import (
	"context"
	"time"
)

// Store persists jobs. Claim must be atomic across processes: a job is
// handed to at most one worker per attempt. A claim is a lease owned by the
// claiming worker and kept alive by Heartbeat; only the owner may finish it.
type Store interface {
	// Enqueue inserts a new job.
	Enqueue(ctx context.Context, job *Job) error

	// Claim marks up to limit claimable jobs with AvailableAt <= now as
	// running for workerID, incrementing their attempt count.
	Claim(ctx context.Context, workerID string, now time.Time, limit int) ([]*Job, error)

	// Complete marks a job running under workerID's lease completed. It
	// returns ErrLeaseLost when the job is not running for workerID.
	Complete(ctx context.Context, id, workerID string, now time.Time) error

	// Fail records a failed attempt of a job leased by workerID. A non-nil
	// retryAt moves the job to retry; nil marks it failed. It returns
	// ErrLeaseLost when the job is not running for workerID.
	Fail(ctx context.Context, id, workerID string, now time.Time, lastError string, retryAt *time.Time) error

	// Heartbeat renews the leases of every job running for workerID and
	// returns how many were renewed.
	Heartbeat(ctx context.Context, workerID string, now time.Time) (int, error)

	// Get returns a job by id.
	Get(ctx context.Context, id string) (*Job, error)

	// RequeueExpired returns running jobs whose lease was last renewed
	// before staleBefore to the queue. Jobs of live workers are untouched.
	RequeueExpired(ctx context.Context, now, staleBefore time.Time) (int, error)

	// Counts returns the number of jobs per status.
	Counts(ctx context.Context) (map[Status]int, error)

	// Prune deletes terminal jobs last updated before the cutoff.
	Prune(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
