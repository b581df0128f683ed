package automation

import (
	"errors"
)

var (
	// ErrTaskNotFound is returned when an automation does not exist in the workspace.
	ErrTaskNotFound = errors.New("automation not found")

	// ErrTaskExists is returned when creating an automation whose id is taken.
	ErrTaskExists = errors.New("automation already exists")

	// ErrRunNotFound is returned when a run does not exist.
	ErrRunNotFound = errors.New("automation run not found")

	// ErrActionBudgetExceeded rejects a mutating call once a run has used
	// its MaxActionsPerRun allowance.
	ErrActionBudgetExceeded = errors.New("action budget exceeded for this run")

	// ErrExternalSourceUnavailable fails a run that needs web or feed
	// retrieval when no such tool is registered.
	ErrExternalSourceUnavailable = errors.New("external source required but no web tool is available")

	// ErrRoundLimit fails a run whose model kept requesting tools past the round cap.
	ErrRoundLimit = errors.New("automation stopped at the round limit")

	// ErrRunPanic marks a run that panicked.
	ErrRunPanic = errors.New("automation run panicked")
)
