package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// DefaultChatInstructions is used when no instructions are configured.
const DefaultChatInstructions = "You are a workspace assistant. Use the available tools to read and organize notes. " +
	"Before creating an automation, call propose_task and wait for the user to confirm."

// ChatConfig configures a ChatService.
type ChatConfig struct {
	Orchestrator *Orchestrator
	Instructions string
	Include      []string

	// CacheSize bounds each turn's idempotency cache.
	CacheSize int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// SetupStateReporter is implemented by gates that track the task setup
// workflow; its state is attached to the done event.
type SetupStateReporter interface {
	State() models.TaskSetupState
}

// ChatService runs live chat turns and streams their events.
type ChatService struct {
	config ChatConfig
	logger *slog.Logger
}

// NewChatService creates a chat service.
func NewChatService(config ChatConfig) *ChatService {
	if config.Instructions == "" {
		config.Instructions = DefaultChatInstructions
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &ChatService{config: config, logger: config.Logger.With("component", "chat")}
}

// ChatRequest is one user turn.
type ChatRequest struct {
	RequestID string
	Message   string
	History   []InputItem
	Actor     harness.Actor

	// Registry holds the executors available this turn.
	Registry *harness.Registry
	Resolver harness.Resolver
	Gate     Gate

	PreviousResponseID string

	// Debug enables debug_error events.
	Debug bool
}

// RunTurn runs one chat turn, emitting events to sink. It always ends with a
// done event. Stream failures fall back to a single non-streaming attempt and
// then to a fixed apology, so the returned error is only informational.
func (s *ChatService) RunTurn(ctx context.Context, req ChatRequest, sink EventSink) (*TurnResult, error) {
	if sink == nil {
		sink = NopSink{}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.Actor.RequestID = req.RequestID
	ctx = observability.AddRequestID(ctx, req.RequestID)
	ctx = observability.AddWorkspaceID(ctx, req.Actor.WorkspaceID)
	logger := observability.LoggerWithContext(ctx, s.logger)

	h := harness.New(harness.Config{
		Actor:     req.Actor,
		Registry:  req.Registry,
		Resolver:  req.Resolver,
		CacheSize: s.config.CacheSize,
		Logger:    s.config.Logger,
		Metrics:   s.config.Metrics,
		Tracer:    s.config.Tracer,
	})

	tools, err := toolargs.Select(h.Registry().Names())
	if err != nil {
		return nil, err
	}

	recorder := NewRecordingSink()
	input := append(append([]InputItem(nil), req.History...), UserMessage(req.Message))
	result, runErr := s.config.Orchestrator.Run(ctx, Turn{
		RequestID:          req.RequestID,
		Instructions:       s.config.Instructions,
		Input:              input,
		Tools:              tools,
		Include:            s.config.Include,
		PreviousResponseID: req.PreviousResponseID,
		Harness:            h,
		Gate:               req.Gate,
		Sink:               NewMultiSink(sink, recorder),
	})

	if runErr != nil && errors.Is(runErr, ErrStream) {
		logger.Warn("stream failed, trying one-shot completion", "error", runErr)
		result = s.fallback(ctx, req, input, result, sink)
	}
	if result == nil {
		result = &TurnResult{Terminal: TerminalError}
	}

	if citations := ExtractCitations(result.Response); len(citations) > 0 {
		sink.Emit(ctx, Event{Type: EventCitations, Data: CitationsPayload{Citations: citations}})
	}
	if sources := WebSourcesFromEvents(recorder.Events()); len(sources) > 0 {
		sink.Emit(ctx, Event{Type: EventWebSources, Data: WebSourcesPayload{Sources: sources}})
	}
	if runErr != nil && req.Debug {
		sink.Emit(ctx, Event{Type: EventDebugError, Data: DebugErrorPayload{
			Kind:    Classify(runErr),
			Message: runErr.Error(),
		}})
	}
	done := DonePayload{
		Terminal:   result.Terminal,
		Rounds:     result.Rounds,
		ResponseID: result.ResponseID,
	}
	if reporter, ok := req.Gate.(SetupStateReporter); ok {
		state := reporter.State()
		done.TaskSetup = &state
	}
	sink.Emit(ctx, Event{Type: EventDone, Data: done})
	return result, runErr
}

// fallback retries the turn once without streaming or tools. If that fails
// too, the apology token is emitted.
func (s *ChatService) fallback(ctx context.Context, req ChatRequest, input []InputItem, partial *TurnResult, sink EventSink) *TurnResult {
	if partial == nil {
		partial = &TurnResult{}
	}
	provider := s.config.Orchestrator.Provider()
	transcript := input
	if len(partial.Input) > 0 {
		transcript = partial.Input
	}
	resp, err := provider.Complete(ctx, &CompletionRequest{
		Model:        s.config.Orchestrator.config.Model,
		Instructions: s.config.Instructions,
		Input:        transcript,
	})
	if err != nil || resp == nil || resp.Text == "" {
		s.logger.Error("one-shot fallback failed", "request_id", req.RequestID, "error", err)
		sink.Emit(ctx, Event{Type: EventToken, Data: TokenPayload{Delta: ApologyMessage}})
		partial.Terminal = TerminalError
		partial.Text = ApologyMessage
		return partial
	}
	sink.Emit(ctx, Event{Type: EventToken, Data: TokenPayload{Delta: resp.Text}})
	partial.Terminal = TerminalAnswered
	partial.Text = resp.Text
	partial.Response = resp
	partial.ResponseID = resp.ID
	return partial
}

// WebSourcesFromEvents collects deduplicated web sources from the successful
// web tool results among events.
func WebSourcesFromEvents(events []Event) []models.WebSource {
	var sources []models.WebSource
	for _, e := range events {
		if e.Type != EventToolResult {
			continue
		}
		p, ok := e.Data.(ToolResultPayload)
		if !ok || !p.OK {
			continue
		}
		sources = append(sources, ExtractWebSources(p.Name, string(p.Output))...)
	}
	if len(sources) == 0 {
		return nil
	}
	return DedupeWebSources(sources)
}

// MarshalEventData encodes an event payload for transport.
func MarshalEventData(e Event) ([]byte, error) {
	return json.Marshal(e.Data)
}
