package web

import (
	"context"
	"sync"

	"github.com/haasonsaas/agentcore/internal/agent"
)

// scriptedProvider replays one scripted stream per Stream call; the last
// script repeats once exhausted.
type scriptedProvider struct {
	mu     sync.Mutex
	rounds [][]agent.ProviderEvent
	calls  int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(context.Context, *agent.CompletionRequest) (<-chan agent.ProviderEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := min(p.calls, len(p.rounds)-1)
	p.calls++
	script := p.rounds[idx]
	ch := make(chan agent.ProviderEvent, len(script))
	for _, ev := range script {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Complete(context.Context, *agent.CompletionRequest) (*agent.CompletedResponse, error) {
	return &agent.CompletedResponse{ID: "oneshot", Text: "fallback"}, nil
}

func answerRound(id, text string) []agent.ProviderEvent {
	return []agent.ProviderEvent{
		{Type: agent.EventResponseCreated, ResponseID: id},
		{Type: agent.EventOutputTextDelta, Delta: text},
		{Type: agent.EventResponseCompleted, Response: &agent.CompletedResponse{ID: id, Text: text}},
	}
}

func toolRound(id, callID, name, args string) []agent.ProviderEvent {
	return []agent.ProviderEvent{
		{Type: agent.EventResponseCreated, ResponseID: id},
		{Type: agent.EventToolCallAdded, ItemID: id + "_item", CallID: callID, Name: name},
		{Type: agent.EventToolCallArgsDelta, ItemID: id + "_item", Delta: args},
		{Type: agent.EventToolCallDone, ItemID: id + "_item"},
		{Type: agent.EventResponseCompleted, Response: &agent.CompletedResponse{ID: id}},
	}
}
