package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/toolargs"
)

func newChatService(provider Provider) *ChatService {
	return NewChatService(ChatConfig{
		Orchestrator: NewOrchestrator(OrchestratorConfig{Provider: provider}),
	})
}

func lastEvent(t *testing.T, sink *RecordingSink) Event {
	t.Helper()
	events := sink.Events()
	if len(events) == 0 {
		t.Fatal("no events recorded")
	}
	return events[len(events)-1]
}

func TestRunTurnEndsWithDone(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]ProviderEvent{answerRound("resp-1", "See [Go docs](https://go.dev/doc).")}}
	svc := newChatService(provider)
	sink := NewRecordingSink()

	result, err := svc.RunTurn(context.Background(), ChatRequest{
		Message:  "where are the docs?",
		Actor:    harness.Actor{WorkspaceID: "ws-1", UserID: "u-1"},
		Registry: harness.NewRegistry(),
	}, sink)
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if result.Terminal != TerminalAnswered {
		t.Errorf("terminal = %s", result.Terminal)
	}
	done := lastEvent(t, sink)
	if done.Type != EventDone {
		t.Fatalf("last event = %s, want done", done.Type)
	}
	if done.Data.(DonePayload).ResponseID != "resp-1" {
		t.Errorf("done payload = %+v", done.Data)
	}
	citations := sink.OfType(EventCitations)
	if len(citations) != 1 {
		t.Fatalf("citations events = %d, want 1", len(citations))
	}
	got := citations[0].Data.(CitationsPayload).Citations
	if len(got) != 1 || got[0].URL != "https://go.dev/doc" || got[0].Title != "Go docs" {
		t.Errorf("citations = %+v", got)
	}
	if len(provider.requests[0].Tools) != 0 {
		t.Errorf("tools offered = %d, want none for an empty registry", len(provider.requests[0].Tools))
	}
}

func TestRunTurnEmitsWebSources(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]ProviderEvent{
		toolRound("resp-1", [3]string{"c1", toolargs.ToolWebSearch, `{"query":"go release"}`}),
		answerRound("resp-2", "Go 1.24 is out."),
	}}
	reg := harness.NewRegistry()
	search := func(context.Context, toolargs.Args, harness.Actor) (any, error) {
		return map[string]any{"results": []map[string]string{
			{"url": "https://go.dev/blog", "title": "Blog"},
			{"url": "https://go.dev/blog", "title": "Blog again"},
		}}, nil
	}
	if err := reg.Register(toolargs.ToolWebSearch, search); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	svc := newChatService(provider)
	sink := NewRecordingSink()

	if _, err := svc.RunTurn(context.Background(), ChatRequest{Message: "news?", Registry: reg}, sink); err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	sources := sink.OfType(EventWebSources)
	if len(sources) != 1 {
		t.Fatalf("web_sources events = %d, want 1", len(sources))
	}
	got := sources[0].Data.(WebSourcesPayload).Sources
	if len(got) != 1 || got[0].Title != "Blog" {
		t.Errorf("sources = %+v", got)
	}
	if len(provider.requests[0].Tools) != 1 || provider.requests[0].Tools[0].Name != toolargs.ToolWebSearch {
		t.Errorf("tools = %+v", provider.requests[0].Tools)
	}
}

func TestRunTurnFallsBackToCompletion(t *testing.T) {
	provider := &scriptedProvider{
		streamErr: errors.New("stream unavailable"),
		complete:  &CompletedResponse{ID: "resp-fb", Text: "Fallback answer"},
	}
	svc := newChatService(provider)
	sink := NewRecordingSink()

	result, err := svc.RunTurn(context.Background(), ChatRequest{Message: "hi", Registry: harness.NewRegistry(), Debug: true}, sink)
	if !errors.Is(err, ErrStream) {
		t.Fatalf("error = %v, want ErrStream", err)
	}
	if result.Terminal != TerminalAnswered || result.Text != "Fallback answer" {
		t.Errorf("result = %+v", result)
	}
	tokens := sink.OfType(EventToken)
	if len(tokens) != 1 || tokens[0].Data.(TokenPayload).Delta != "Fallback answer" {
		t.Errorf("tokens = %+v", tokens)
	}
	debug := sink.OfType(EventDebugError)
	if len(debug) != 1 || debug[0].Data.(DebugErrorPayload).Kind != KindStream {
		t.Errorf("debug events = %+v", debug)
	}
	if lastEvent(t, sink).Type != EventDone {
		t.Error("turn must end with done")
	}
}

func TestRunTurnApologizesWhenFallbackFails(t *testing.T) {
	provider := &scriptedProvider{
		streamErr:   errors.New("stream unavailable"),
		completeErr: errors.New("also down"),
	}
	svc := newChatService(provider)
	sink := NewRecordingSink()

	result, _ := svc.RunTurn(context.Background(), ChatRequest{Message: "hi", Registry: harness.NewRegistry()}, sink)
	if result.Text != ApologyMessage || result.Terminal != TerminalError {
		t.Errorf("result = %+v", result)
	}
	if len(sink.OfType(EventDebugError)) != 0 {
		t.Error("debug_error must only be sent in debug mode")
	}
	done := lastEvent(t, sink)
	if done.Type != EventDone || done.Data.(DonePayload).Terminal != TerminalError {
		t.Errorf("done = %+v", done)
	}
}

func TestMarshalEventData(t *testing.T) {
	data, err := MarshalEventData(Event{Type: EventToken, Data: TokenPayload{Delta: "hi"}})
	if err != nil {
		t.Fatalf("MarshalEventData() error = %v", err)
	}
	if string(data) != `{"delta":"hi"}` {
		t.Errorf("data = %s", data)
	}
}
