// Package queue is a claim-based durable job queue. Workers atomically
// claim available jobs from a Store, run the handler registered for the
// job type, and record completion or schedule a retry with backoff.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Status represents the state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusRetry     Status = "retry"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// Statuses lists every job status.
var Statuses = []Status{StatusQueued, StatusRunning, StatusRetry, StatusFailed, StatusCompleted}

// Claimable reports whether a job in status s may be claimed.
func (s Status) Claimable() bool {
	return s == StatusQueued || s == StatusRetry
}

// Terminal reports whether s is final.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusCompleted
}

// Job is one unit of queued work.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`

	// Attempts counts claims. It is incremented when the job is claimed.
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Status      Status    `json:"status"`
	AvailableAt time.Time `json:"available_at"`
	LockedBy    string    `json:"locked_by,omitempty"`
	LastError   string    `json:"last_error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(j.Payload, v)
}

// EnqueueRequest describes a job to add.
type EnqueueRequest struct {
	// ID is optional. A repeated ID fails with ErrDuplicateJob.
	ID          string
	Type        string
	WorkspaceID string

	// Payload is marshaled to JSON unless it is already json.RawMessage or []byte.
	Payload any

	// MaxAttempts defaults to the queue's configured value.
	MaxAttempts int

	// AvailableAt defaults to now.
	AvailableAt time.Time
}

// Handler runs one job. Returning an error schedules a retry unless the
// attempts are exhausted or the error is Permanent.
type Handler func(ctx context.Context, job *Job) error

// Stats summarizes the queue.
type Stats struct {
	Counts   map[Status]int `json:"counts"`
	Total    int            `json:"total"`
	InFlight int            `json:"in_flight"`
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	clone := *job
	if job.Payload != nil {
		clone.Payload = append(json.RawMessage(nil), job.Payload...)
	}
	if job.StartedAt != nil {
		t := *job.StartedAt
		clone.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		clone.FinishedAt = &t
	}
	return &clone
}
