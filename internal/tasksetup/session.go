// Package tasksetup gates the conversational workflow that creates a
// scheduled automation. A Session is installed as the per-turn policy of a
// chat turn: it blocks unrelated workspace writes once the turn touches task
// lifecycle tools, and it only lets create_task through when the user
// explicitly approved a proposal whose signature matches the draft.
package tasksetup

import (
	"context"
	"log/slog"
	"sync"

	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Phase is the state of the setup workflow within one turn.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseProposing            Phase = "proposing"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseConfirmed            Phase = "confirmed"
	PhaseCanceled             Phase = "canceled"
)

// TurnContext is the cross-turn state the client sends with each message.
type TurnContext struct {
	UserMessage               string
	AcceptedProposal          *models.TaskProposal
	AcceptedProposalSignature string
	Logger                    *slog.Logger
}

// Session is the task setup policy for one turn. It is safe for concurrent use.
type Session struct {
	turn   TurnContext
	logger *slog.Logger

	mu            sync.Mutex
	phase         Phase
	active        bool
	sawTaskTool   bool
	sawProposal   bool
	mutated       bool
	lastProposal  *models.TaskProposal
	lastSignature string
}

var _ harness.Policy = (*Session)(nil)

// NewSession creates the policy for one turn.
func NewSession(turn TurnContext) *Session {
	logger := turn.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		turn:   turn,
		logger: logger.With("component", "tasksetup"),
		phase:  PhaseIdle,
	}
	if turn.AcceptedProposal != nil {
		s.phase = PhaseAwaitingConfirmation
		if IsRejection(turn.UserMessage) {
			s.phase = PhaseCanceled
		}
	}
	return s
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// State returns a snapshot of the session.
func (s *Session) State() models.TaskSetupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := models.TaskSetupState{
		Phase:                     string(s.phase),
		Active:                    s.active,
		SawTaskToolInTurn:         s.sawTaskTool,
		SawTaskProposalInTurn:     s.sawProposal,
		AcceptedProposalSignature: s.turn.AcceptedProposalSignature,
		ProposalSignature:         s.lastSignature,
	}
	if s.turn.AcceptedProposal != nil {
		p := *s.turn.AcceptedProposal
		state.AcceptedProposal = &p
	}
	if s.lastProposal != nil {
		p := *s.lastProposal
		state.Proposal = &p
	}
	return state
}

// BeginRound marks the turn task-setup-active before any call of the round
// runs when the round contains a task lifecycle call, so the isolation rule
// does not depend on the order the calls completed in.
func (s *Session) BeginRound(calls []models.ToolCallRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, call := range calls {
		if !toolargs.IsTaskLifecycle(call.Name) {
			continue
		}
		s.active = true
		if s.phase == PhaseIdle {
			s.phase = PhaseProposing
		}
		return
	}
}

// Allow implements harness.Policy.
func (s *Session) Allow(_ context.Context, call harness.Call, args toolargs.Args) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !toolargs.IsTaskLifecycle(call.Name) {
		if toolargs.IsMutating(call.Name) && (s.active || s.sawProposal) {
			s.logger.Info("blocked mutation during task setup", "tool", call.Name, "call_id", call.CallID)
			return harness.NewPolicyError(call.Name, ErrFinishTaskSetup)
		}
		return nil
	}
	if s.mutated && call.Name != toolargs.ToolListTasks {
		s.logger.Info("blocked task setup after workspace changes", "tool", call.Name, "call_id", call.CallID)
		return harness.NewPolicyError(call.Name, ErrWorkspaceChanged)
	}

	s.active = true
	s.sawTaskTool = true
	if s.phase == PhaseIdle {
		s.phase = PhaseProposing
	}
	switch call.Name {
	case toolargs.ToolProposeTask:
		s.sawProposal = true
		s.phase = PhaseProposing
	case toolargs.ToolCreateTask:
		if err := s.checkCreate(args); err != nil {
			s.logger.Info("create_task refused", "call_id", call.CallID, "reason", err)
			return harness.NewPolicyError(call.Name, err)
		}
	}
	return nil
}

// checkCreate enforces the confirmation rules. Callers hold s.mu.
func (s *Session) checkCreate(args toolargs.Args) error {
	create, ok := args.(*toolargs.CreateTaskArgs)
	if !ok {
		return ErrNoAcceptedProposal
	}
	if s.phase == PhaseCanceled {
		return ErrConfirmationRequired
	}
	if !create.Confirmed || !IsExplicitConfirmation(s.turn.UserMessage) {
		if IsRejection(s.turn.UserMessage) {
			s.phase = PhaseCanceled
		}
		return ErrConfirmationRequired
	}
	if s.turn.AcceptedProposal == nil || s.turn.AcceptedProposalSignature == "" {
		return ErrNoAcceptedProposal
	}

	accepted, err := Signature(*s.turn.AcceptedProposal)
	if err != nil || accepted != s.turn.AcceptedProposalSignature {
		return ErrSignatureMismatch
	}
	draft, err := Signature(create.Proposal())
	if err != nil || draft != s.turn.AcceptedProposalSignature {
		return ErrSignatureMismatch
	}
	return nil
}

// Observe implements harness.Policy.
func (s *Session) Observe(call harness.Call, args toolargs.Args, outcome harness.Outcome) {
	if !outcome.OK {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if toolargs.IsMutating(call.Name) && !toolargs.IsTaskLifecycle(call.Name) {
		s.mutated = true
		return
	}
	switch call.Name {
	case toolargs.ToolProposeTask:
		if propose, ok := args.(*toolargs.ProposeTaskArgs); ok {
			p := Normalize(propose.Proposal())
			if sig, err := Signature(p); err == nil {
				p.ProposalSignature = sig
				s.lastProposal = &p
				s.lastSignature = sig
			}
		}
		s.phase = PhaseAwaitingConfirmation
	case toolargs.ToolCreateTask:
		s.phase = PhaseConfirmed
	}
}
