package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/haasonsaas/agentcore/internal/agent"
	"github.com/haasonsaas/agentcore/internal/auth"
	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/tasksetup"
	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// chatMessage is one prior message of the conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the body of POST /v1/chat.
type chatRequest struct {
	Message                   string               `json:"message"`
	History                   []chatMessage        `json:"history,omitempty"`
	PreviousResponseID        string               `json:"previousResponseId,omitempty"`
	AcceptedProposal          *models.TaskProposal `json:"acceptedProposal,omitempty"`
	AcceptedProposalSignature string               `json:"acceptedProposalSignature,omitempty"`
	OpenNoteID                string               `json:"openNoteId,omitempty"`
}

func (req chatRequest) history() []agent.InputItem {
	items := make([]agent.InputItem, 0, len(req.History))
	for _, m := range req.History {
		switch strings.ToLower(m.Role) {
		case "user":
			items = append(items, agent.UserMessage(m.Content))
		case "assistant":
			items = append(items, agent.AssistantMessage(m.Content))
		}
	}
	return items
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.config.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	requestID := observability.GetRequestID(r.Context())
	logger := observability.LoggerWithContext(r.Context(), s.logger)

	var resolver harness.Resolver
	if req.OpenNoteID != "" {
		resolver = harness.OpenNoteResolver(req.OpenNoteID, toolargs.ToolGetNote, toolargs.ToolUpdateNote)
	}
	gate := tasksetup.NewSession(tasksetup.TurnContext{
		UserMessage:               req.Message,
		AcceptedProposal:          req.AcceptedProposal,
		AcceptedProposalSignature: req.AcceptedProposalSignature,
		Logger:                    logger,
	})

	sink := newSSESink(w, r.Context(), logger)

	// The turn outlives the client connection; only event delivery stops.
	ctx := context.WithoutCancel(r.Context())
	result, err := s.config.Chat.RunTurn(ctx, agent.ChatRequest{
		RequestID: requestID,
		Message:   req.Message,
		History:   req.history(),
		Actor: harness.Actor{
			WorkspaceID: identity.WorkspaceID,
			UserID:      identity.UserID,
		},
		Registry:           s.config.Tools,
		Resolver:           resolver,
		Gate:               gate,
		PreviousResponseID: req.PreviousResponseID,
		Debug:              s.config.Debug,
	}, sink)
	if err != nil {
		logger.Warn("chat turn ended with error", "error", err, "kind", agent.Classify(err))
		return
	}
	logger.Debug("chat turn finished", "terminal", result.Terminal, "rounds", result.Rounds, "phase", gate.Phase())
}
