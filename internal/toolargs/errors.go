package toolargs

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned for tool names outside the registry.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError describes arguments that could not be normalized.
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid arguments for %s: %s %s", e.Tool, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func missing(tool, field string) error {
	return &ValidationError{Tool: tool, Field: field, Reason: "is required"}
}

func malformed(tool, field, reason string) error {
	return &ValidationError{Tool: tool, Field: field, Reason: reason}
}

// IsValidationError reports whether err came from argument normalization.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
