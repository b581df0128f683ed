package agent

import (
	"errors"
	"fmt"

	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/toolargs"
)

var (
	// ErrStream indicates the provider stream failed mid-turn.
	ErrStream = errors.New("provider stream failed")

	// ErrNoProvider indicates no provider is configured.
	ErrNoProvider = errors.New("no provider configured")
)

// PolicyError is a call rejected by a gate.
type PolicyError = harness.PolicyError

// ErrorKind is the error taxonomy reported in traces and events.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindTool       ErrorKind = "tool_error"
	KindStream     ErrorKind = "stream_error"
	KindPolicy     ErrorKind = "policy_error"
	KindQueue      ErrorKind = "queue_error"
)

// kinded lets packages outside agent declare their error kind.
type kinded interface {
	ErrorKind() string
}

// Classify maps err onto the error taxonomy. Unrecognized errors are tool errors.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *harness.PolicyError
	var k kinded
	switch {
	case errors.As(err, &pe):
		return KindPolicy
	case errors.Is(err, harness.ErrInvalidArguments), toolargs.IsValidationError(err):
		return KindValidation
	case errors.Is(err, ErrStream):
		return KindStream
	case errors.As(err, &k):
		return ErrorKind(k.ErrorKind())
	default:
		return KindTool
	}
}

func streamError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStream, provider, err)
}

// ApologyMessage is shown when a chat turn cannot produce any answer.
const ApologyMessage = "Sorry, I couldn't complete that request. Please try again."

// UserFacingMessage returns a short sentence describing err for end users.
func UserFacingMessage(err error) string {
	switch Classify(err) {
	case KindPolicy:
		return err.Error()
	case KindValidation:
		return "That request had invalid details."
	case KindStream:
		return ApologyMessage
	default:
		return "Something went wrong while running a tool."
	}
}
