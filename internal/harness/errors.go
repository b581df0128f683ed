package harness

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArguments marks failures while parsing, resolving or
	// normalizing tool arguments. These are returned to the model and never
	// retried.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrNoExecutor indicates the tool is known but nothing is registered to run it.
	ErrNoExecutor = errors.New("tool is not available")

	// ErrExecutorPanic indicates an executor panicked.
	ErrExecutorPanic = errors.New("tool panicked")
)

// ExecError wraps an error returned by a tool executor.
type ExecError struct {
	Tool string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// PolicyError is returned when a policy refuses a call. It is always
// surfaced to the model and the caller.
type PolicyError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *PolicyError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e *PolicyError) Unwrap() error { return e.Err }

// NewPolicyError wraps err as a policy rejection for tool.
func NewPolicyError(tool string, err error) *PolicyError {
	reason := "policy"
	if err != nil {
		reason = err.Error()
	}
	return &PolicyError{Tool: tool, Reason: reason, Err: err}
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
}
