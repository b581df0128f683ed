package tasksetup

import "errors"

var (
	// ErrFinishTaskSetup rejects unrelated writes while an automation is being configured.
	ErrFinishTaskSetup = errors.New("finish task setup first: workspace changes are blocked until the automation is created or abandoned")

	// ErrWorkspaceChanged rejects task setup in a turn that already wrote to the workspace.
	ErrWorkspaceChanged = errors.New("this turn already changed the workspace: set up the automation in a new message")

	// ErrConfirmationRequired rejects create_task without an explicit yes from the user.
	ErrConfirmationRequired = errors.New("the user has not explicitly confirmed this automation")

	// ErrNoAcceptedProposal rejects create_task when no proposal was accepted in a prior turn.
	ErrNoAcceptedProposal = errors.New("no accepted proposal: call propose_task and wait for the user to accept it")

	// ErrSignatureMismatch rejects create_task when the draft differs from the accepted proposal.
	ErrSignatureMismatch = errors.New("automation differs from the accepted proposal: propose it again")
)
