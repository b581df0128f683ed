package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/agentcore/internal/harness"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/toolargs"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// DefaultMaxRounds is the number of tool-executing rounds allowed per turn.
const DefaultMaxRounds = 6

// Terminal is the state a turn ended in.
type Terminal string

const (
	TerminalAnswered   Terminal = "answered"
	TerminalRoundLimit Terminal = "round_limit"
	TerminalError      Terminal = "error"
)

// Gate is a per-turn policy consulted before each tool call runs.
type Gate = harness.Policy

// RoundGate is implemented by gates that need to see a whole round of calls
// before any of them runs.
type RoundGate interface {
	BeginRound(calls []models.ToolCallRequest)
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Provider Provider
	Model    string

	// MaxRounds caps tool-executing rounds per turn. Default: 6.
	MaxRounds int

	Temperature *float64
	MaxTokens   int

	// Mode labels metrics, e.g. "chat" or "automation".
	Mode string

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// DefaultOrchestratorConfig returns the defaults used when fields are zero.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxRounds: DefaultMaxRounds,
		Mode:      "chat",
	}
}

// Orchestrator drives rounds of model completion and tool execution.
type Orchestrator struct {
	config OrchestratorConfig
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator, applying defaults.
func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	if config.MaxRounds <= 0 {
		config.MaxRounds = DefaultMaxRounds
	}
	if config.Mode == "" {
		config.Mode = "chat"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Orchestrator{
		config: config,
		logger: config.Logger.With("component", "orchestrator", "mode", config.Mode),
	}
}

// MaxRounds returns the configured round cap.
func (o *Orchestrator) MaxRounds() int { return o.config.MaxRounds }

// Provider returns the configured provider.
func (o *Orchestrator) Provider() Provider { return o.config.Provider }

// Turn is the input of one orchestrated turn or automation run.
type Turn struct {
	RequestID    string
	Instructions string
	Input        []InputItem
	Tools        []toolargs.Definition
	Include      []string

	PreviousResponseID string

	// Harness runs the tool calls. It must be owned by this turn.
	Harness *harness.Harness

	// Gate is consulted for every call before it runs. Optional.
	Gate Gate

	// Sink receives events. Optional.
	Sink EventSink
}

// TurnResult is the outcome of a turn.
type TurnResult struct {
	Terminal Terminal

	// Rounds counts tool-executing rounds.
	Rounds int

	// Text is the answer text of the final round.
	Text       string
	ResponseID string
	Response   *CompletedResponse

	// Input is the final transcript including tool calls and outputs.
	Input  []InputItem
	Traces []models.ToolTrace
}

// Run executes the turn until the model stops requesting tools or the round
// cap is reached. A stream failure returns an error wrapping ErrStream along
// with the partial result.
func (o *Orchestrator) Run(ctx context.Context, turn Turn) (*TurnResult, error) {
	if o.config.Provider == nil {
		return nil, ErrNoProvider
	}
	if turn.Harness == nil {
		return nil, errors.New("turn requires a harness")
	}
	sink := turn.Sink
	if sink == nil {
		sink = NopSink{}
	}
	logger := o.logger.With("request_id", turn.RequestID)

	input := append([]InputItem(nil), turn.Input...)
	result := &TurnResult{Terminal: TerminalError}
	previousID := turn.PreviousResponseID

	for round := 0; round <= o.config.MaxRounds; round++ {
		o.config.Metrics.RecordRound(o.config.Mode)
		roundCtx, span := o.config.Tracer.TraceRound(ctx, turn.RequestID, round)

		req := &CompletionRequest{
			Model:              o.config.Model,
			Instructions:       turn.Instructions,
			Input:              input,
			Tools:              turn.Tools,
			Include:            turn.Include,
			PreviousResponseID: previousID,
			Temperature:        o.config.Temperature,
			MaxTokens:          o.config.MaxTokens,
		}
		resp, calls, err := o.streamRound(roundCtx, req, sink)
		if err != nil {
			o.config.Tracer.RecordError(span, err)
			span.End()
			logger.Warn("provider stream failed", "round", round, "error", err)
			result.Input = input
			result.Traces = turn.Harness.Traces()
			o.config.Metrics.RecordTurn(o.config.Mode, string(TerminalError))
			return result, err
		}

		result.Response = resp
		result.ResponseID = resp.ID
		result.Text = resp.Text
		previousID = resp.ID

		if len(calls) == 0 {
			span.End()
			result.Terminal = TerminalAnswered
			break
		}

		if round == o.config.MaxRounds {
			span.End()
			o.markRoundLimit(ctx, turn, round, sink)
			logger.Info("round limit reached", "rounds", round, "pending_calls", len(calls))
			result.Terminal = TerminalRoundLimit
			break
		}

		if resp.Text != "" {
			input = append(input, AssistantMessage(resp.Text))
		}
		if rg, ok := turn.Gate.(RoundGate); ok {
			rg.BeginRound(calls)
		}
		// One assistant turn carries every call; the outputs follow in
		// completion order.
		outputs := make([]InputItem, 0, len(calls))
		for _, call := range calls {
			input = append(input, InputItem{Type: InputFunctionCall, CallID: call.CallID, Name: call.Name, Arguments: call.Arguments})
			outputs = append(outputs, o.executeCall(roundCtx, turn, call, round, sink))
		}
		input = append(input, outputs...)
		result.Rounds++
		span.End()
	}

	result.Input = input
	result.Traces = turn.Harness.Traces()
	o.config.Metrics.RecordTurn(o.config.Mode, string(result.Terminal))
	logger.Debug("turn finished", "terminal", result.Terminal, "rounds", result.Rounds)
	return result, nil
}

// streamRound consumes one provider stream, forwarding text deltas and
// returning the tool calls in the order their done events arrived.
func (o *Orchestrator) streamRound(ctx context.Context, req *CompletionRequest, sink EventSink) (*CompletedResponse, []models.ToolCallRequest, error) {
	name := o.config.Provider.Name()
	llmCtx, span := o.config.Tracer.TraceLLMRequest(ctx, name, req.Model)
	defer span.End()

	events, err := o.config.Provider.Stream(llmCtx, req)
	if err != nil {
		return nil, nil, streamError(name, err)
	}

	buffer := NewCallBuffer()
	var text strings.Builder
	var completed *CompletedResponse
	responseID := ""

	for ev := range events {
		switch ev.Type {
		case EventResponseCreated:
			responseID = ev.ResponseID
		case EventOutputTextDelta:
			if ev.Delta == "" {
				continue
			}
			text.WriteString(ev.Delta)
			sink.Emit(ctx, Event{Type: EventToken, Data: TokenPayload{Delta: ev.Delta}})
		case EventToolCallAdded, EventToolCallArgsDelta, EventToolCallDone:
			buffer.Apply(ev)
		case EventResponseCompleted:
			completed = ev.Response
		case EventProviderError:
			err := ev.Err
			if err == nil {
				err = errors.New("unknown provider error")
			}
			// Drain so the producer goroutine can exit.
			go func() {
				for range events {
				}
			}()
			return nil, nil, streamError(name, err)
		}
	}

	if completed == nil {
		completed = &CompletedResponse{ID: responseID}
	}
	if completed.ID == "" {
		completed.ID = responseID
	}
	if completed.Text == "" {
		completed.Text = text.String()
	}
	calls := buffer.Completed()
	if n := buffer.Pending(); n > 0 {
		o.logger.Warn("dropping tool calls without a done event", "response_id", completed.ID, "count", n)
	}
	completed.ToolCalls = calls
	return completed, calls, nil
}

// executeCall runs one call through the gate and harness, emitting the
// call, result and trace events, and returns the call's output item.
func (o *Orchestrator) executeCall(ctx context.Context, turn Turn, call models.ToolCallRequest, round int, sink EventSink) InputItem {
	sink.Emit(ctx, Event{Type: EventToolCall, Data: ToolCallPayload{
		CallID:    call.CallID,
		Name:      call.Name,
		Arguments: call.Arguments,
		Round:     round,
	}})

	out := turn.Harness.RunWithPolicy(ctx, harness.Call{
		Name:    call.Name,
		RawArgs: call.Arguments,
		CallID:  call.CallID,
		Round:   round,
	}, turn.Gate)

	payload := ToolResultPayload{
		CallID:         call.CallID,
		Name:           call.Name,
		Round:          round,
		OK:             out.OK,
		IdempotencyKey: out.Trace.IdempotencyKey,
		CacheHit:       out.Trace.CacheHit,
		Mutating:       toolargs.IsMutating(call.Name),
	}
	var output string
	if out.OK {
		output = encodeOutput(out.Result)
		payload.Output = json.RawMessage(output)
	} else {
		payload.Error = out.Err.Error()
		payload.ErrorKind = Classify(out.Err)
		output = encodeOutput(map[string]any{
			"error": payload.Error,
			"kind":  payload.ErrorKind,
		})
	}
	sink.Emit(ctx, Event{Type: EventToolResult, Data: payload})
	sink.Emit(ctx, Event{Type: EventToolTrace, Data: out.Trace})

	return InputItem{Type: InputFunctionCallOutput, CallID: call.CallID, Output: output}
}

func (o *Orchestrator) markRoundLimit(ctx context.Context, turn Turn, round int, sink EventSink) {
	now := time.Now()
	marker := models.ToolTrace{
		RequestID:  turn.RequestID,
		Round:      round,
		Name:       models.RoundLimitTraceName,
		Status:     models.TraceError,
		Error:      fmt.Sprintf("stopped after %d tool rounds", o.config.MaxRounds),
		StartedAt:  now,
		FinishedAt: now,
	}
	turn.Harness.AppendTrace(marker)
	traces := turn.Harness.Traces()
	sink.Emit(ctx, Event{Type: EventToolTrace, Data: traces[len(traces)-1]})
}

// encodeOutput renders a tool result as JSON text for the model.
func encodeOutput(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		if json.Valid([]byte(val)) {
			return val
		}
	case json.RawMessage:
		if json.Valid(val) {
			return string(val)
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return string(data)
}
