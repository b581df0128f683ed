package agent

import (
	"context"
	"errors"
	"sync"
)

// scriptedProvider replays one scripted stream per Stream call. Once the
// script is exhausted the last entry repeats.
type scriptedProvider struct {
	mu       sync.Mutex
	rounds   [][]ProviderEvent
	requests []*CompletionRequest

	streamErr   error
	complete    *CompletedResponse
	completeErr error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(_ context.Context, req *CompletionRequest) (<-chan ProviderEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	if idx >= len(p.rounds) {
		idx = len(p.rounds) - 1
	}
	script := p.rounds[idx]
	ch := make(chan ProviderEvent, len(script))
	for _, ev := range script {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Complete(_ context.Context, _ *CompletionRequest) (*CompletedResponse, error) {
	if p.completeErr != nil {
		return nil, p.completeErr
	}
	if p.complete == nil {
		return nil, errors.New("no completion scripted")
	}
	return p.complete, nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func answerRound(id, text string) []ProviderEvent {
	return []ProviderEvent{
		{Type: EventResponseCreated, ResponseID: id},
		{Type: EventOutputTextDelta, Delta: text},
		{Type: EventResponseCompleted, Response: &CompletedResponse{ID: id, Text: text}},
	}
}

func toolRound(id string, calls ...[3]string) []ProviderEvent {
	events := []ProviderEvent{{Type: EventResponseCreated, ResponseID: id}}
	for i, c := range calls {
		itemID := id + "_item_" + string(rune('a'+i))
		events = append(events,
			ProviderEvent{Type: EventToolCallAdded, ItemID: itemID, CallID: c[0], Name: c[1]},
			ProviderEvent{Type: EventToolCallArgsDelta, ItemID: itemID, Delta: c[2]},
			ProviderEvent{Type: EventToolCallDone, ItemID: itemID},
		)
	}
	return append(events, ProviderEvent{Type: EventResponseCompleted, Response: &CompletedResponse{ID: id}})
}
