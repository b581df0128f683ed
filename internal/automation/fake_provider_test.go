package automation

import (
	"context"
	"sync"

	"github.com/haasonsaas/agentcore/internal/agent"
)

// scriptedProvider replays one scripted stream per Stream call; the last
// script repeats once exhausted.
type scriptedProvider struct {
	mu       sync.Mutex
	rounds   [][]agent.ProviderEvent
	requests []*agent.CompletionRequest

	streamErr error
	panics    bool
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(_ context.Context, req *agent.CompletionRequest) (<-chan agent.ProviderEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.panics {
		panic("provider exploded")
	}
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	idx := len(p.requests) - 1
	if idx >= len(p.rounds) {
		idx = len(p.rounds) - 1
	}
	script := p.rounds[idx]
	ch := make(chan agent.ProviderEvent, len(script))
	for _, ev := range script {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Complete(context.Context, *agent.CompletionRequest) (*agent.CompletedResponse, error) {
	return nil, p.streamErr
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) *agent.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func answerRound(id, text string) []agent.ProviderEvent {
	return []agent.ProviderEvent{
		{Type: agent.EventResponseCreated, ResponseID: id},
		{Type: agent.EventOutputTextDelta, Delta: text},
		{Type: agent.EventResponseCompleted, Response: &agent.CompletedResponse{ID: id, Text: text}},
	}
}

// toolRound scripts a response requesting calls given as {callID, name, arguments}.
func toolRound(id string, calls ...[3]string) []agent.ProviderEvent {
	events := []agent.ProviderEvent{{Type: agent.EventResponseCreated, ResponseID: id}}
	for i, c := range calls {
		itemID := id + "_item_" + string(rune('a'+i))
		events = append(events,
			agent.ProviderEvent{Type: agent.EventToolCallAdded, ItemID: itemID, CallID: c[0], Name: c[1]},
			agent.ProviderEvent{Type: agent.EventToolCallArgsDelta, ItemID: itemID, Delta: c[2]},
			agent.ProviderEvent{Type: agent.EventToolCallDone, ItemID: itemID},
		)
	}
	return append(events, agent.ProviderEvent{Type: agent.EventResponseCompleted, Response: &agent.CompletedResponse{ID: id}})
}
