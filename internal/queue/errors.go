package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job id does not exist or is not in
	// the state an update expects.
	ErrJobNotFound = errors.New("job not found")

	// ErrLeaseLost is returned when a worker finishes a job it no longer
	// holds, because its lease expired and the job was requeued or claimed
	// by another worker.
	ErrLeaseLost = errors.New("job lease lost")

	// ErrDuplicateJob is returned when enqueueing an id that already exists.
	ErrDuplicateJob = errors.New("duplicate job id")

	// ErrUnknownJobType is recorded for jobs with no registered handler.
	ErrUnknownJobType = errors.New("no handler registered for job type")

	// ErrHandlerPanic is recorded when a handler panics.
	ErrHandlerPanic = errors.New("job handler panicked")
)

// JobError is a failed attempt of a job.
type JobError struct {
	JobID    string
	Type     string
	Attempt  int
	Terminal bool
	Err      error
}

func (e *JobError) Error() string {
	state := "will retry"
	if e.Terminal {
		state = "terminal"
	}
	return fmt.Sprintf("job %s (%s) attempt %d %s: %v", e.JobID, e.Type, e.Attempt, state, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// ErrorKind reports the queue_error kind.
func (e *JobError) ErrorKind() string { return "queue_error" }

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The job fails immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
